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

package store

import (
	"context"

	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

// documents is the subset of Store that mongostore.DB satisfies.
type documents interface {
	GetDocument(ctx context.Context, id sharedTypes.UUID) (Document, error)
	PutDocument(ctx context.Context, doc Document, current *docsnapshot.Snapshot) error
	GetCurrentSnapshot(ctx context.Context, id sharedTypes.UUID) (*docsnapshot.Snapshot, error)
}

// versions is the subset of Store that pgstore.DB satisfies.
type versions interface {
	AppendVersion(ctx context.Context, id sharedTypes.UUID, snapshot *docsnapshot.Snapshot) error
	GetVersion(ctx context.Context, id sharedTypes.UUID, version sharedTypes.Version) (*docsnapshot.Snapshot, error)
	ListVersions(ctx context.Context, id sharedTypes.UUID) ([]sharedTypes.Version, error)
	RecordChange(ctx context.Context, change Change) error
	ChangesBetween(ctx context.Context, id sharedTypes.UUID, from, to sharedTypes.Version) ([]Change, error)
}

// composite glues the document store (mongostore) and the version/change
// log store (pgstore) into a single Store, since the two concerns are
// naturally split across two datastores but everything above pkg/store
// operates on one interface.
type composite struct {
	documents
	versions
}

// Compose returns a Store backed by docs for document-entity/current-
// snapshot operations and log for version-log/change-history operations.
func Compose(docs documents, log versions) Store {
	return &composite{documents: docs, versions: log}
}
