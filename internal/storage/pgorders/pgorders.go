package pgorders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db *pgxpool.Pool
}

type Option func(*pgxpool.Config)

// WithMaxConns ограничивает пул; у воркера это concurrency sweep'а плюс запас.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

func New(connString string, opts ...Option) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}
	for _, o := range opts {
		o(cfg)
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open ждёт, пока postgres поднимется (docker compose стартует всё разом),
// но не дольше wait.
func Open(ctx context.Context, connString string, wait time.Duration, opts ...Option) (*Storage, error) {
	deadline := time.Now().Add(wait)
	for {
		st, err := New(connString, opts...)
		if err == nil {
			return st, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(err, "postgres is not ready after %s", wait)
		}
		slog.Warn("postgres is not ready, retrying", "err", err)
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "open pg")
		case <-time.After(time.Second):
		}
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "ping pg")
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
