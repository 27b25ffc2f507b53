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

// Package versionlog implements the ordered, append-only log of snapshots
// and recorded changes per document: lookup by version, the change-history
// range query, and restore-to-version. It depends only on the store.Store
// interface, never a concrete driver.
package versionlog

import (
	"context"

	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
)

// Log is the version-log façade over a store.Store. One Log serves every
// document; each call names the document id it acts on.
type Log struct {
	s store.Store
}

func New(s store.Store) *Log {
	return &Log{s: s}
}

// Append records snapshot as the new current version and logs it in
// history. Callers are expected to have already bumped snapshot.Version
// via sharedTypes.Version.Next before calling Append.
func (l *Log) Append(ctx context.Context, id sharedTypes.UUID, doc store.Document, snapshot *docsnapshot.Snapshot) error {
	doc.CurrentVersion = snapshot.Version
	if err := l.s.PutDocument(ctx, doc, snapshot); err != nil {
		return errors.Tag(err, "put current snapshot")
	}
	if err := l.s.AppendVersion(ctx, id, snapshot); err != nil {
		return errors.Tag(err, "append version log entry")
	}
	return nil
}

// Get returns the historical snapshot logged at the exact version.
func (l *Log) Get(ctx context.Context, id sharedTypes.UUID, version sharedTypes.Version) (*docsnapshot.Snapshot, error) {
	snapshot, err := l.s.GetVersion(ctx, id, version)
	if err != nil {
		return nil, errors.Tag(err, "get version")
	}
	return snapshot, nil
}

// List returns every logged version for a document, newest first.
func (l *Log) List(ctx context.Context, id sharedTypes.UUID) ([]sharedTypes.Version, error) {
	versions, err := l.s.ListVersions(ctx, id)
	if err != nil {
		return nil, errors.Tag(err, "list versions")
	}
	return versions, nil
}

// ChangesBetween returns every recorded change with source version in
// [from, to).
func (l *Log) ChangesBetween(ctx context.Context, id sharedTypes.UUID, from, to sharedTypes.Version) ([]store.Change, error) {
	changes, err := l.s.ChangesBetween(ctx, id, from, to)
	if err != nil {
		return nil, errors.Tag(err, "get changes between versions")
	}
	return changes, nil
}

// RestoreTo copies the content stored at version forward as a brand new
// current version: it never rewrites history. The new snapshot carries the
// bumped version number but the restored content (piece table and overlay)
// verbatim, matching the "restore copies the whole blob forward" semantics
// of the source version-control model.
func (l *Log) RestoreTo(ctx context.Context, id sharedTypes.UUID, doc store.Document, version sharedTypes.Version) (*docsnapshot.Snapshot, error) {
	old, err := l.Get(ctx, id, version)
	if err != nil {
		return nil, err
	}

	restored := docsnapshot.FromWire(old.ToWire())
	restored.Version = doc.CurrentVersion.Next()

	if err := l.Append(ctx, id, doc, restored); err != nil {
		return nil, errors.Tag(err, "append restored version")
	}
	return restored, nil
}
