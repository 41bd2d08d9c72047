package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Publisher delivers the metric rows somewhere humans look at them and
// returns a link to the result.
type Publisher interface {
	Publish(ctx context.Context, rows []Row) (string, error)
}

// SheetPublisher overwrites the first worksheet of a spreadsheet.
type SheetPublisher struct {
	spreadsheetID string
	sheetsService *sheets.Service
}

func NewSheetPublisher(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetPublisher, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is not set")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetPublisher{spreadsheetID: spreadsheetID, sheetsService: svc}, nil
}

// NewSheetPublisherFromFile authenticates with a service account key file.
func NewSheetPublisherFromFile(ctx context.Context, spreadsheetID, credentialsPath string) (*SheetPublisher, error) {
	return NewSheetPublisher(ctx, spreadsheetID, option.WithCredentialsFile(credentialsPath))
}

func (p *SheetPublisher) Publish(ctx context.Context, rows []Row) (string, error) {
	doc, err := p.sheetsService.Spreadsheets.Get(p.spreadsheetID).
		Fields("spreadsheetUrl", "sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet %s: %w", p.spreadsheetID, err)
	}
	if len(doc.Sheets) == 0 || doc.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no worksheets", p.spreadsheetID)
	}
	sheetName := quoteSheetName(doc.Sheets[0].Properties.Title)

	_, err = p.sheetsService.Spreadsheets.Values.Clear(p.spreadsheetID, sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to clear worksheet: %w", err)
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, []interface{}{header[0], header[1]})
	for _, r := range rows {
		values = append(values, []interface{}{r.Metric, r.Value})
	}

	updateRange := fmt.Sprintf("%s!A1", sheetName)
	_, err = p.sheetsService.Spreadsheets.Values.Update(p.spreadsheetID, updateRange,
		&sheets.ValueRange{Values: values}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update worksheet: %w", err)
	}

	url := doc.SpreadsheetUrl
	if url == "" {
		url = "https://docs.google.com/spreadsheets/d/" + p.spreadsheetID
	}
	return url, nil
}

func quoteSheetName(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
