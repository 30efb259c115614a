package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Driver: "mysql", DSN: "x"}, discardLogger())
	assert.Error(t, err)
}

func TestOpenWithoutRetryBudgetUsesDefault(t *testing.T) {
	db, err := store.Open(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "gtfs.db"),
	}, discardLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
}
