package app

import (
	"context"
	"fmt"

	"github.com/shrimpsizemoose/attemptsync/internal/store"
)

type Service struct {
	Config  *Config
	Store   store.AttemptStore
	Journal *Journal
}

// NewService loads the config and opens the store without dialing it; the
// jobs check connectivity themselves. Redis is optional.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	var journal *Journal
	if config.Redis.URL != "" {
		journal, err = NewJournal(ctx, config.Redis.URL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to init journal: %w", err)
		}
	}

	return &Service{
		Config:  config,
		Store:   store,
		Journal: journal,
	}, nil
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
