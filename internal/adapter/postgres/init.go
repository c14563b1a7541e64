package postgres

import (
	"log/slog"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter {
		return New(logger)
	})
}
