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

// Package mongostore backs the document-entity half of store.Store — the
// Document row plus its latest DocumentSnapshot blob — with MongoDB. A
// document's current snapshot is exactly the kind of semi-structured,
// whole-blob-replaced value Mongo document storage fits; historical
// snapshots and the change log live in pgstore instead, since those are
// append-only and queried by range.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
)

type documentRow struct {
	Id             sharedTypes.UUID `bson:"_id"`
	Title          string           `bson:"title"`
	PasskeyHash    string           `bson:"passkeyHash"`
	CreatedAt      time.Time        `bson:"createdAt"`
	LastModified   time.Time        `bson:"lastModified"`
	CurrentVersion int64            `bson:"currentVersion"`
	Snapshot       docsnapshot.Wire `bson:"snapshot"`
}

type DB struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *DB {
	return &DB{c: db.Collection("documents")}
}

func (db *DB) GetDocument(ctx context.Context, id sharedTypes.UUID) (store.Document, error) {
	var row documentRow
	err := db.c.FindOne(ctx, bson.M{"_id": id}).Decode(&row)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return store.Document{}, &errors.NotFoundError{}
		}
		return store.Document{}, errors.Tag(err, "find document")
	}
	return store.Document{
		Id:             row.Id,
		Title:          row.Title,
		PasskeyHash:    row.PasskeyHash,
		CreatedAt:      row.CreatedAt,
		LastModified:   row.LastModified,
		CurrentVersion: sharedTypes.Version(row.CurrentVersion),
	}, nil
}

func (db *DB) PutDocument(ctx context.Context, doc store.Document, current *docsnapshot.Snapshot) error {
	row := documentRow{
		Id:             doc.Id,
		Title:          doc.Title,
		PasskeyHash:    doc.PasskeyHash,
		CreatedAt:      doc.CreatedAt,
		LastModified:   doc.LastModified,
		CurrentVersion: int64(doc.CurrentVersion),
		Snapshot:       current.ToWire(),
	}
	_, err := db.c.ReplaceOne(
		ctx,
		bson.M{"_id": doc.Id},
		row,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Tag(err, "upsert document")
	}
	return nil
}

func (db *DB) GetCurrentSnapshot(ctx context.Context, id sharedTypes.UUID) (*docsnapshot.Snapshot, error) {
	var row documentRow
	err := db.c.FindOne(ctx, bson.M{"_id": id}).Decode(&row)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &errors.NotFoundError{}
		}
		return nil, errors.Tag(err, "find document")
	}
	return docsnapshot.FromWire(row.Snapshot), nil
}
