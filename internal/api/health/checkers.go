package health

import (
	"context"
	"database/sql"
	"errors"
)

// Pinger is satisfied by storage backends that expose a ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewSQLiteChecker reports job store connectivity.
func NewSQLiteChecker(db *sql.DB) Checker {
	return checkFunc{name: "sqlite", fn: func(ctx context.Context) error {
		if db == nil {
			return errors.New("job store not initialized")
		}
		return db.PingContext(ctx)
	}}
}

// NewClickHouseChecker reports entry store connectivity.
func NewClickHouseChecker(p Pinger) Checker {
	return checkFunc{name: "clickhouse", fn: func(ctx context.Context) error {
		if p == nil {
			return errors.New("clickhouse not configured")
		}
		return p.Ping(ctx)
	}}
}
