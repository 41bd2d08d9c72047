package main

import (
	"context"
	"flag"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/attemptsync/internal/app"
	"github.com/shrimpsizemoose/attemptsync/internal/report"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	service, err := app.NewService(ctx, *configPath)
	if err != nil {
		logger.Error.Printf("CRITICAL: failed to start: %v", err)
		return
	}
	defer service.Close()

	cfg := service.Config
	if err := cfg.ValidateReport(); err != nil {
		logger.Error.Printf("CRITICAL: %v", err)
		return
	}

	var publisher report.Publisher
	sheet, err := report.NewSheetPublisherFromFile(ctx, cfg.Report.SpreadsheetID, cfg.Report.CredentialsFile)
	if err != nil {
		logger.Error.Printf("Google Sheets is unavailable: %v", err)
	} else {
		publisher = sheet
	}

	var mailer report.Mailer
	if cfg.SMTP.Complete() {
		mailer = report.NewSMTPMailer(report.MailerConfig{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Password: cfg.SMTP.SenderPassword,
			From:     cfg.SMTP.SenderEmail,
			To:       cfg.SMTP.RecipientEmail,
		})
	}

	reporter := report.NewReporter(report.ReporterConfig{
		BackupPath:     cfg.Report.BackupPath,
		Start:          cfg.API.Start,
		End:            cfg.API.End,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
	}, service.Store, publisher, mailer, service.Journal)

	logger.Info.Println("=== Report started ===")
	if _, err := reporter.Run(ctx); err != nil {
		logger.Error.Printf("Report aborted: %v", err)
	}
}
