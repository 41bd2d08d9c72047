package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// WriteBackup stores the rows as CSV at path and returns its absolute form.
func WriteBackup(path string, rows []Row) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve backup path: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(table(rows)); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}
	return abs, nil
}
