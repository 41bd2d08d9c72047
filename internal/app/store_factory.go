package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/attemptsync/internal/store"
	"github.com/shrimpsizemoose/attemptsync/internal/store/postgres"
	"github.com/shrimpsizemoose/attemptsync/internal/store/sqlite"
)

func storeType(dsn string) store.DatabaseType {
	if strings.HasPrefix(dsn, "postgres") {
		return store.DBTypePostgres
	}
	return store.DBTypeSQLite
}

func NewStore(dsn string) (store.AttemptStore, error) {
	switch storeType(dsn) {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(dsn)
	case store.DBTypeSQLite:
		return sqlite.NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", redactDSN(dsn))
	}
}
