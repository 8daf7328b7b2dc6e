// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the Alignment Store: a relational container of
// per-alignment rows, the chained table-rewriting filters that refine it,
// the marker/taxon clustering used by some of those filters, and the fixed
// set of aggregation views that summarize it.
//
// The store owns a single embedded SQLite connection for its entire
// lifetime (§5: "one embedded database connection, owned exclusively by the
// store"). Nothing about it is safe for concurrent use from more than one
// goroutine; the pipeline that drives it is strictly sequential.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// commitEvery bounds how many buffered writes accumulate in a single
// SQLite transaction before it is committed and reopened (§4.2, §5).
const commitEvery = 100000

// HistoryEntry records one snapshot of the alignment table taken before a
// table-rewriting filter was applied (§3 "History of filtered tables").
type HistoryEntry struct {
	Op    string
	Table string
}

// Store is the Alignment Store.
type Store struct {
	db *sql.DB

	inTx       bool
	writes     int
	insertStmt *sql.Stmt

	history []HistoryEntry
}

// Open creates a new Alignment Store. An empty path opens an in-memory
// database; otherwise the store is file-backed and survives process exit
// for inspection (§3 "Lifecycle").
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	// A single physical connection: raw BEGIN/COMMIT statements below must
	// land on the same session, and the store is the exclusive owner of it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if _, err := s.db.Exec(`create table alignment (
		taxon text not null,
		marker text not null,
		query text not null,
		identity real not null,
		coverage real not null
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating alignment table: %w", err)
	}
	return s, nil
}

// Close releases the store's database connection. If the store is
// file-backed, the file remains on disk.
func (s *Store) Close() error {
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	return s.db.Close()
}

// History returns the sequence of pre-filter table snapshots taken so far,
// oldest first.
func (s *Store) History() []HistoryEntry {
	return append([]HistoryEntry(nil), s.history...)
}

// StartBulkWrite opens the transaction that frames a batch of
// AddAlignment calls.
func (s *Store) StartBulkWrite() error {
	if s.inTx {
		return fmt.Errorf("store: bulk write already in progress")
	}
	if _, err := s.db.Exec("begin transaction"); err != nil {
		return fmt.Errorf("store: starting bulk write: %w", err)
	}
	s.inTx = true
	s.writes = 0
	stmt, err := s.db.Prepare(`insert into alignment (taxon, marker, query, identity, coverage) values (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("store: preparing insert: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

// EndBulkWrite commits the transaction opened by StartBulkWrite.
func (s *Store) EndBulkWrite() error {
	if !s.inTx {
		return fmt.Errorf("store: no bulk write in progress")
	}
	if s.insertStmt != nil {
		s.insertStmt.Close()
		s.insertStmt = nil
	}
	if _, err := s.db.Exec("commit transaction"); err != nil {
		return fmt.Errorf("store: ending bulk write: %w", err)
	}
	s.inTx = false
	s.writes = 0
	return nil
}

// AddAlignment buffers one alignment row. If called within a bulk write,
// the underlying transaction is committed and reopened every commitEvery
// writes to bound memory and WAL growth (§4.2, §5).
func (s *Store) AddAlignment(taxon, marker, query string, identity, coverage float64) error {
	if s.inTx {
		if _, err := s.insertStmt.Exec(taxon, marker, query, identity, coverage); err != nil {
			return fmt.Errorf("store: inserting alignment: %w", err)
		}
		s.writes++
		if s.writes%commitEvery == 0 {
			s.insertStmt.Close()
			if _, err := s.db.Exec("commit transaction"); err != nil {
				return fmt.Errorf("store: committing mid-flight: %w", err)
			}
			if _, err := s.db.Exec("begin transaction"); err != nil {
				return fmt.Errorf("store: reopening transaction: %w", err)
			}
			stmt, err := s.db.Prepare(`insert into alignment (taxon, marker, query, identity, coverage) values (?,?,?,?,?)`)
			if err != nil {
				return fmt.Errorf("store: re-preparing insert: %w", err)
			}
			s.insertStmt = stmt
		}
		return nil
	}
	_, err := s.db.Exec(`insert into alignment (taxon, marker, query, identity, coverage) values (?,?,?,?,?)`,
		taxon, marker, query, identity, coverage)
	if err != nil {
		return fmt.Errorf("store: inserting alignment: %w", err)
	}
	return nil
}

// Query runs an arbitrary read-only query against the store and returns
// the resulting rows. Callers must close the returned *sql.Rows.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// modifyTable replaces the current alignment table with the result of
// selectQuery, keeping the old table under a fresh, unique snapshot name
// (§3 "History of filtered tables").
func (s *Store) modifyTable(op, selectQuery string, args ...any) error {
	snapshot := snapshotTableName(op)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: starting filter transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("create table alignment_new as "+selectQuery, args...); err != nil {
		return fmt.Errorf("store: applying filter %s: %w", op, err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`alter table alignment rename to "%s"`, snapshot)); err != nil {
		return fmt.Errorf("store: snapshotting table before filter %s: %w", op, err)
	}
	if _, err := tx.Exec(`alter table alignment_new rename to alignment`); err != nil {
		return fmt.Errorf("store: promoting filtered table for %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing filter %s: %w", op, err)
	}

	s.history = append(s.history, HistoryEntry{Op: op, Table: snapshot})
	return nil
}

// snapshotTableName returns a unique, SQL-identifier-safe name for the
// pre-filter snapshot of the alignment table, tagged with the name of the
// filter about to run.
func snapshotTableName(op string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("alignment_pre_filter_on_%s_%s", op, id)
}
