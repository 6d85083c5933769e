package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Meta keys holding the schema version. schemaMetaKey is canonical;
// schemaMetaAliasKey is a compatibility shim from an earlier design and is
// written in lockstep but never preferred on read.
const (
	schemaMetaKey      = "schema_version"
	schemaMetaAliasKey = "db_version"
)

// MetaGet returns the value stored under key, or ErrNotFound.
func (s *Store) MetaGet(ctx context.Context, key string) (string, error) {
	return metaGet(ctx, s.db, key)
}

// MetaSet upserts a key/value pair in the meta table.
func (s *Store) MetaSet(ctx context.Context, key, value string) error {
	return metaSet(ctx, s.db, key, value)
}

func metaGet(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, nil
}

func metaSet(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// SchemaVersion returns the stored schema version, preferring the canonical
// key and falling back to the legacy alias. A brand-new store reports 0.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

func schemaVersion(ctx context.Context, q dbtx) (int, error) {
	for _, key := range []string{schemaMetaKey, schemaMetaAliasKey} {
		raw, err := metaGet(ctx, q, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		version, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, fmt.Errorf("meta key %q holds non-numeric version %q", key, raw)
		}
		return version, nil
	}
	return 0, nil
}

func setSchemaVersion(ctx context.Context, q dbtx, version int) error {
	value := strconv.Itoa(version)
	if err := metaSet(ctx, q, schemaMetaKey, value); err != nil {
		return err
	}
	return metaSet(ctx, q, schemaMetaAliasKey, value)
}

// syncSchemaVersionKeys seeds the canonical key from the legacy alias (or
// vice versa) so both keys exist and agree after every successful open.
func (s *Store) syncSchemaVersionKeys(ctx context.Context) error {
	version, err := schemaVersion(ctx, s.db)
	if err != nil {
		return err
	}
	return setSchemaVersion(ctx, s.db, version)
}
