package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
)

// Store hands out ReportStores bound to a single transaction.
type Store struct {
	db *database.DB
}

// NewStore creates a new Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// InTransaction runs fn with a ReportStore whose every call shares one
// transaction. All writes commit together when fn returns nil.
func (s *Store) InTransaction(ctx context.Context, fn func(store ReportStore) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(NewReportRepository(tx))
	})
}
