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

// Package store defines the abstract persistence facade the core consumes:
// the current Document entity, the append-only version log, and the
// recorded Change history. Concrete adapters (pgstore, mongostore) satisfy
// Store; pkg/versionlog and pkg/session depend only on this interface.
package store

import (
	"context"
	"time"

	"github.com/collabtext/editor-core/pkg/diffengine"
	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

// Document is the document entity: id, title, opaque passkey hash, and
// timestamps. The latest snapshot is held separately, not inline, since it
// is large; both the Document row and the latest snapshot live in
// mongostore, while pgstore holds the version log and change history.
type Document struct {
	Id             sharedTypes.UUID
	Title          string
	PasskeyHash    string
	CreatedAt      time.Time
	LastModified   time.Time
	CurrentVersion sharedTypes.Version
}

// Change is a persisted record of one applied diff, keyed by the version it
// was applied against (SourceVersion) and the document it belongs to.
type Change struct {
	DocumentId    sharedTypes.UUID
	Timestamp     time.Time
	SourceVersion sharedTypes.Version
	Diff          diffengine.Diff
}

// Store is the persistence facade: document metadata CRUD, the
// current-snapshot blob, the append-only version log, and the recorded-
// change history. A Store implementation makes no assumption about which
// goroutine calls it; pkg/session serializes all calls for a single
// document through its per-document actor.
type Store interface {
	// GetDocument returns the document's metadata row.
	GetDocument(ctx context.Context, id sharedTypes.UUID) (Document, error)

	// PutDocument upserts the document's metadata and its current snapshot.
	PutDocument(ctx context.Context, doc Document, current *docsnapshot.Snapshot) error

	// GetCurrentSnapshot returns the latest snapshot blob for a document.
	GetCurrentSnapshot(ctx context.Context, id sharedTypes.UUID) (*docsnapshot.Snapshot, error)

	// AppendVersion appends a new entry to the version log. The
	// (documentId, version) pair must be unique; Store implementations
	// report a duplicate as errors.AlreadyReportedError.
	AppendVersion(ctx context.Context, id sharedTypes.UUID, snapshot *docsnapshot.Snapshot) error

	// GetVersion looks up a single historical snapshot by exact version.
	// Returns errors.NotFoundError if no entry exists at that version.
	GetVersion(ctx context.Context, id sharedTypes.UUID, version sharedTypes.Version) (*docsnapshot.Snapshot, error)

	// ListVersions returns every logged version for a document, ordered by
	// version descending (newest first).
	ListVersions(ctx context.Context, id sharedTypes.UUID) ([]sharedTypes.Version, error)

	// RecordChange appends one Change to the document's change history.
	RecordChange(ctx context.Context, change Change) error

	// ChangesBetween returns every recorded change with
	// SourceVersion in [from, to), ordered by timestamp ascending.
	ChangesBetween(ctx context.Context, id sharedTypes.UUID, from, to sharedTypes.Version) ([]Change, error)
}
