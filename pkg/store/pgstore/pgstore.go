// Golang port of Overleaf
// Copyright (C) 2021-2024 Jakob Ackermann <das7pad@outlook.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package pgstore backs the relational half of store.Store — the
// version-number log and recorded change history — with PostgreSQL via
// pgx/v5. Both tables are append-only and indexed by (document_id,
// version) / (document_id, source_version, timestamp), matching the access pattern
// versionlog.Log actually runs: point lookups by exact version and range
// scans ordered by time.
package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collabtext/editor-core/pkg/diffengine"
	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
)

// Schema (applied out of band, via migrations not vendored in this
// module):
//
//	CREATE TABLE document_versions (
//	    document_id UUID        NOT NULL,
//	    version     BIGINT      NOT NULL,
//	    snapshot    JSONB        NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (document_id, version)
//	);
//	CREATE TABLE document_changes (
//	    document_id    UUID        NOT NULL,
//	    source_version BIGINT      NOT NULL,
//	    "timestamp"    TIMESTAMPTZ NOT NULL,
//	    diff           JSONB       NOT NULL
//	);
//	CREATE INDEX document_changes_range
//	    ON document_changes (document_id, source_version, "timestamp");

type DB struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func Connect(ctx context.Context, dsn string) (*DB, error) {
	ctx, done := context.WithTimeout(ctx, 10*time.Second)
	defer done()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Tag(err, "cannot talk to postgres")
	}
	if err = pool.Ping(ctx); err != nil {
		return nil, errors.Tag(err, "cannot talk to postgres")
	}
	return New(pool), nil
}

func (db *DB) AppendVersion(ctx context.Context, id sharedTypes.UUID, snapshot *docsnapshot.Snapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Tag(err, "marshal snapshot")
	}
	_, err = db.pool.Exec(ctx, `
INSERT INTO document_versions (document_id, version, snapshot)
VALUES ($1, $2, $3)
`, id, int64(snapshot.Version), blob)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.MarkAsReported(err)
		}
		return errors.Tag(err, "insert version log entry")
	}
	return nil
}

func (db *DB) GetVersion(ctx context.Context, id sharedTypes.UUID, version sharedTypes.Version) (*docsnapshot.Snapshot, error) {
	var blob []byte
	err := db.pool.QueryRow(ctx, `
SELECT snapshot FROM document_versions WHERE document_id = $1 AND version = $2
`, id, int64(version)).Scan(&blob)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &errors.NotFoundError{}
		}
		return nil, errors.Tag(err, "query version")
	}
	var snapshot docsnapshot.Snapshot
	if err = json.Unmarshal(blob, &snapshot); err != nil {
		return nil, errors.Tag(err, "unmarshal snapshot")
	}
	return &snapshot, nil
}

func (db *DB) ListVersions(ctx context.Context, id sharedTypes.UUID) ([]sharedTypes.Version, error) {
	rows, err := db.pool.Query(ctx, `
SELECT version FROM document_versions WHERE document_id = $1 ORDER BY version DESC
`, id)
	if err != nil {
		return nil, errors.Tag(err, "query versions")
	}
	defer rows.Close()

	var out []sharedTypes.Version
	for rows.Next() {
		var v int64
		if err = rows.Scan(&v); err != nil {
			return nil, errors.Tag(err, "scan version")
		}
		out = append(out, sharedTypes.Version(v))
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Tag(err, "iterate versions")
	}
	return out, nil
}

func (db *DB) RecordChange(ctx context.Context, change store.Change) error {
	blob, err := json.Marshal(change.Diff)
	if err != nil {
		return errors.Tag(err, "marshal diff")
	}
	_, err = db.pool.Exec(ctx, `
INSERT INTO document_changes (document_id, source_version, "timestamp", diff)
VALUES ($1, $2, $3, $4)
`, change.DocumentId, int64(change.SourceVersion), change.Timestamp, blob)
	if err != nil {
		return errors.Tag(err, "insert change")
	}
	return nil
}

func (db *DB) ChangesBetween(ctx context.Context, id sharedTypes.UUID, from, to sharedTypes.Version) ([]store.Change, error) {
	rows, err := db.pool.Query(ctx, `
SELECT source_version, "timestamp", diff
FROM document_changes
WHERE document_id = $1 AND source_version >= $2 AND source_version < $3
ORDER BY "timestamp" ASC
`, id, int64(from), int64(to))
	if err != nil {
		return nil, errors.Tag(err, "query changes")
	}
	defer rows.Close()

	var out []store.Change
	for rows.Next() {
		var sourceVersion int64
		var ts time.Time
		var blob []byte
		if err = rows.Scan(&sourceVersion, &ts, &blob); err != nil {
			return nil, errors.Tag(err, "scan change")
		}
		var diff diffengine.Diff
		if err = json.Unmarshal(blob, &diff); err != nil {
			return nil, errors.Tag(err, "unmarshal diff")
		}
		out = append(out, store.Change{
			DocumentId:    id,
			Timestamp:     ts,
			SourceVersion: sharedTypes.Version(sourceVersion),
			Diff:          diff,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Tag(err, "iterate changes")
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if e, ok := err.(interface{ SQLState() string }); ok {
		return e.SQLState() == "23505"
	}
	return false
}
