package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/medlan/medlan-backend/pkg/database"
	"github.com/medlan/medlan-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies
// schema to it. Call this in TestMain; when Docker is unavailable the error
// lets the caller skip instead of failing.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() {
//	        suite, _ = testutil.NewIntegrationSuite(ctx, repository.Schema())
//	    }
//	    os.Exit(m.Run())
//	}
func NewIntegrationSuite(ctx context.Context, schema string) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	wrapped := database.Wrap(db, log, 0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrapped,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Truncate empties tables before a test. Row triggers do not fire on TRUNCATE,
// so append-only tables can be reset too.
func (s *IntegrationSuite) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	stmt := "TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := s.RawDB.ExecContext(context.Background(), stmt); err != nil {
		t.Fatalf("failed to truncate %v: %v", tables, err)
	}
}

// Require skips t when the suite could not be started.
func Require(t *testing.T, s *IntegrationSuite) *IntegrationSuite {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if s == nil {
		t.Skip("skipping integration test: postgres container unavailable")
	}
	return s
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
