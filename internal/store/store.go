// Package store is the embedded relational persistence layer backing the
// admin surface. It wraps a github.com/chaisql/chai database (accessed
// through database/sql, driver name "chai") holding the users, proxies,
// proxy_domains, gateway_nodes, gateways and settings tables described in
// the external interface contract. All admin writes that can affect a
// Proxy's resolved high_speed_addr recompute it in the same store call,
// per the admin-write-time resolution policy; the statements of that call
// are not wrapped in a transaction.
package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/chaisql/chai/driver"

	"github.com/wirelane/drawbridge/internal/xerrors"
)

// Store is the handle to the embedded database. It is safe for concurrent
// use; chai serializes writers internally and the seq counter is atomic.
type Store struct {
	db  *sql.DB
	seq atomic.Int64
}

// Open creates or opens the database file at path (":memory:" for an
// ephemeral store, used in tests) and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("chai", path)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerrors.NewStorageError(fmt.Errorf("migrate: %w", err))
	}
	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// bootstrap seeds settings('gateway_id')=1 on first boot and primes the
// insertion-order sequence counter from the highest seq already on disk.
func (s *Store) bootstrap() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, "gateway_id").Scan(&value)
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)`, "gateway_id", "1"); err != nil {
			return xerrors.NewStorageError(err)
		}
	} else if err != nil {
		return xerrors.NewStorageError(err)
	}

	var maxSeq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM gateways`).Scan(&maxSeq); err != nil && err != sql.ErrNoRows {
		return xerrors.NewStorageError(err)
	}
	s.seq.Store(maxSeq.Int64)
	return nil
}

func (s *Store) nextSeq() int64 {
	return s.seq.Add(1)
}

// CurrentGeneration returns the generation recorded in settings.
func (s *Store) CurrentGeneration() (int64, error) {
	var value string
	if err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, "gateway_id").Scan(&value); err != nil {
		return 0, xerrors.NewStorageError(err)
	}
	var gen int64
	if _, err := fmt.Sscanf(value, "%d", &gen); err != nil {
		return 0, xerrors.NewStorageError(err)
	}
	return gen, nil
}

// BumpGeneration increments and persists the generation counter, returning
// the new value. Called whenever an admin write should trigger a snapshot
// rebuild.
func (s *Store) BumpGeneration() (int64, error) {
	gen, err := s.CurrentGeneration()
	if err != nil {
		return 0, err
	}
	gen++
	if _, err := s.db.Exec(`UPDATE settings SET value = ? WHERE key = ?`, fmt.Sprintf("%d", gen), "gateway_id"); err != nil {
		return 0, xerrors.NewStorageError(err)
	}
	return gen, nil
}
