// Package repository is the PostgreSQL implementation of the inventory store.
// Every method runs on the transaction carried by ctx when there is one, so
// the service layer composes them inside database.DB.WithTx.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/database"
	"github.com/medlan/medlan-backend/pkg/errors"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schema
}

var _ service.Store = (*Store)(nil)

// Store handles inventory persistence
type Store struct {
	db      *database.DB
	builder squirrel.StatementBuilderType
}

// New creates a new inventory store
func New(db *database.DB) *Store {
	return &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Migrate applies the inventory schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply inventory schema: %w", err)
	}
	return nil
}

// WithTx runs fn in one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTx(ctx, fn)
}

// NextSequence increments the counter for prefix and year.
func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	query := `
		INSERT INTO document_sequences (prefix, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value
	`

	var next int64
	if err := s.q(ctx).QueryRowxContext(ctx, query, prefix, year).Scan(&next); err != nil {
		return 0, translate(err, "sequence", "increment document sequence")
	}
	return next, nil
}

func (s *Store) q(ctx context.Context) database.Querier {
	return s.db.Q(ctx)
}

func (s *Store) get(ctx context.Context, dest interface{}, b squirrel.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return s.q(ctx).GetContext(ctx, dest, query, args...)
}

func (s *Store) selectAll(ctx context.Context, dest interface{}, b squirrel.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return s.q(ctx).SelectContext(ctx, dest, query, args...)
}

// count runs COUNT(*) over a filtered select that has no columns yet.
func (s *Store) count(ctx context.Context, base squirrel.SelectBuilder) (int64, error) {
	var total int64
	if err := s.get(ctx, &total, base.Columns("COUNT(*)")); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build statement: %w", err)
	}
	return s.q(ctx).ExecContext(ctx, query, args...)
}

func paginate(b squirrel.SelectBuilder, p domain.Page) squirrel.SelectBuilder {
	if p.Limit > 0 {
		b = b.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		b = b.Offset(uint64(p.Offset))
	}
	return b
}

// day renders a calendar date so PostgreSQL compares it as DATE.
func day(t time.Time) string {
	return domain.Date(t).Format("2006-01-02")
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// translate maps driver errors onto the application taxonomy and wraps
// anything unrecognised with the failed action.
func translate(err error, resource, action string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func requireRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
