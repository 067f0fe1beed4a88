package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type configDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads configuration from the config_entries table.
type PGStore struct {
	DB configDB
}

func NewPGStore(db configDB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRow(ctx, `SELECT value FROM config_entries WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("config get %q: %w", key, err)
	}
	return value, true, nil
}
