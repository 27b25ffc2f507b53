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

// Package session implements the per-document SessionCoordinator: a
// single-writer actor per document id, a bounded Hub of live actors, and
// cross-node broadcast fan-out over Redis.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/diffengine"
	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/formatting"
	"github.com/collabtext/editor-core/pkg/mergeengine"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
	"github.com/collabtext/editor-core/pkg/versionlog"
)

const inboxSize = 64

const bcastTimeout = 2 * time.Second

// slowApplyThresholdMs flags an applyOperation call worth a log line: the
// single-writer actor loop blocks every other request on this document
// while one runs, so a slow apply is a latency hazard for the whole room.
const slowApplyThresholdMs = 200

// SubscriberId identifies one connected subscriber within an Actor's local
// process. It is only unique per-actor, not cluster-wide.
type SubscriberId uint64

type subscriber struct {
	id     SubscriberId
	userId string
	send   chan channel.Message
}

type request struct {
	kind   requestKind
	from   SubscriberId
	userId string
	ch     chan channel.Message
	op     channel.Operation
	pos    int
	msg    channel.Message
	joined *SubscriberId
	done   chan error
}

type requestKind int

const (
	reqJoin requestKind = iota
	reqLeave
	reqOperation
	reqCursor
	reqSyncRequest
	reqRemoteDeliver
)

// Actor owns the single mutable in-memory DocumentSnapshot for one
// document. All mutation flows through run(), so no lock is needed around
// the snapshot itself: a single-writer shape, same as a per-document
// dispatch worker, adapted here from a Redis-queue-fed worker pool to an
// in-process buffered channel.
type Actor struct {
	docId sharedTypes.UUID
	doc   store.Document

	snapshot *docsnapshot.Snapshot
	merge    *mergeengine.Engine
	log      *versionlog.Log
	bcast    *broadcaster

	inbox       chan request
	subscribers map[SubscriberId]subscriber
	nextSubId   SubscriberId

	done     chan struct{}
	stopOnce sync.Once
}

func newActor(doc store.Document, snapshot *docsnapshot.Snapshot, log *versionlog.Log, bcast *broadcaster) *Actor {
	a := &Actor{
		docId:       doc.Id,
		doc:         doc,
		snapshot:    snapshot,
		merge:       mergeengine.New(),
		log:         log,
		bcast:       bcast,
		inbox:       make(chan request, inboxSize),
		subscribers: make(map[SubscriberId]subscriber),
		done:        make(chan struct{}),
	}
	go a.run()
	return a
}

// Stop terminates the actor's goroutine, which closes every subscriber's
// outbound channel; requests still queued are not handled. Calls after the
// first are no-ops. The caller is responsible for persisting a.snapshot
// first (the Hub does this on eviction).
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Actor) Snapshot() *docsnapshot.Snapshot {
	return a.snapshot
}

// deliverRemote fans a message that landed on another node out to every
// local subscriber. It runs on the actor's own goroutine so it never races
// handle's map mutation.
func (a *Actor) deliverRemote(m channel.Message) error {
	return a.submit(context.Background(), request{kind: reqRemoteDeliver, msg: m, done: make(chan error, 1)})
}

// Join registers a new local subscriber under the given authenticated
// userId and returns its local SubscriberId plus a channel of messages to
// deliver to it (document_state first, then broadcasts). userId is opaque
// to Actor: whatever authenticated the connection assigns it.
func (a *Actor) Join(ctx context.Context, userId string) (SubscriberId, <-chan channel.Message, error) {
	ch := make(chan channel.Message, inboxSize)
	var id SubscriberId
	r := request{kind: reqJoin, userId: userId, ch: ch, joined: &id, done: make(chan error, 1)}
	if err := a.submit(ctx, r); err != nil {
		return 0, nil, err
	}
	return id, ch, nil
}

func (a *Actor) Leave(ctx context.Context, id SubscriberId) error {
	return a.submit(ctx, request{kind: reqLeave, from: id, done: make(chan error, 1)})
}

// ApplyOperation submits an inbound "operation" message carrying its
// sourceVersion and the operation to apply against it.
func (a *Actor) ApplyOperation(ctx context.Context, from SubscriberId, op channel.Operation) error {
	return a.submit(ctx, request{kind: reqOperation, from: from, op: op, done: make(chan error, 1)})
}

func (a *Actor) CursorUpdate(ctx context.Context, from SubscriberId, pos int) error {
	return a.submit(ctx, request{kind: reqCursor, from: from, pos: pos, done: make(chan error, 1)})
}

func (a *Actor) SyncRequest(ctx context.Context, from SubscriberId) error {
	return a.submit(ctx, request{kind: reqSyncRequest, from: from, done: make(chan error, 1)})
}

func (a *Actor) submit(ctx context.Context, r request) error {
	select {
	case a.inbox <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return &errors.InvalidStateError{Msg: "actor stopped"}
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return &errors.InvalidStateError{Msg: "actor stopped"}
	}
}

func (a *Actor) run() {
	for {
		select {
		case r := <-a.inbox:
			a.handle(r)
		case <-a.done:
			a.closeSubscribers()
			return
		}
	}
}

func (a *Actor) closeSubscribers() {
	for id, sub := range a.subscribers {
		close(sub.send)
		delete(a.subscribers, id)
	}
}

func (a *Actor) handle(r request) {
	switch r.kind {
	case reqJoin:
		a.nextSubId++
		id := a.nextSubId
		a.subscribers[id] = subscriber{id: id, userId: r.userId, send: r.ch}
		*r.joined = id
		a.sendDocumentState(id)
		r.done <- nil
	case reqLeave:
		if sub, ok := a.subscribers[r.from]; ok {
			close(sub.send)
			delete(a.subscribers, r.from)
			a.broadcastLocal(r.from, channel.TypeUserDisconnected, channel.UserDisconnected{
				UserId: sub.userId,
			})
		}
		r.done <- nil
	case reqOperation:
		r.done <- a.applyOperation(r.from, r.op)
	case reqCursor:
		a.broadcastLocal(r.from, channel.TypeCursorPosition, channel.CursorPosition{
			UserId:   a.subscribers[r.from].userId,
			Position: r.pos,
		})
		r.done <- nil
	case reqSyncRequest:
		a.sendSyncResponse(r.from)
		r.done <- nil
	case reqRemoteDeliver:
		for _, sub := range a.subscribers {
			select {
			case sub.send <- r.msg:
			default:
			}
		}
		r.done <- nil
	default:
		r.done <- &errors.ValidationError{Msg: "unknown request kind"}
	}
}

func (a *Actor) sendDocumentState(to SubscriberId) {
	users := make([]string, 0, len(a.subscribers))
	for _, sub := range a.subscribers {
		users = append(users, sub.userId)
	}
	content, err := a.snapshot.MarshalJSON()
	if err != nil {
		log.Printf("document %s: marshal snapshot: %s", a.docId, err)
		return
	}
	m, err := channel.Encode(channel.TypeDocumentState, channel.DocumentState{
		Content:     content,
		Version:     int64(a.snapshot.Version),
		ActiveUsers: users,
	})
	if err != nil {
		log.Printf("document %s: encode document_state: %s", a.docId, err)
		return
	}
	a.deliver(to, m)
}

func (a *Actor) sendSyncResponse(to SubscriberId) {
	content, err := a.snapshot.MarshalJSON()
	if err != nil {
		log.Printf("document %s: marshal snapshot: %s", a.docId, err)
		return
	}
	m, err := channel.Encode(channel.TypeSyncResponse, channel.SyncResponse{
		Content: content,
		Version: int64(a.snapshot.Version),
	})
	if err != nil {
		log.Printf("document %s: encode sync_response: %s", a.docId, err)
		return
	}
	a.deliver(to, m)
}

func (a *Actor) sendSyncRequired(to SubscriberId) {
	m, err := channel.Encode(channel.TypeSyncRequired, channel.SyncRequired{
		CurrentVersion: int64(a.snapshot.Version),
	})
	if err != nil {
		log.Printf("document %s: encode sync_required: %s", a.docId, err)
		return
	}
	a.deliver(to, m)
}

func (a *Actor) deliver(to SubscriberId, m channel.Message) {
	sub, ok := a.subscribers[to]
	if !ok {
		return
	}
	select {
	case sub.send <- m:
	default:
		// Slow subscriber: drop rather than block the single-writer loop.
	}
}

// broadcastLocal fans m out to every local subscriber except from, and
// publishes it to the cross-node channel so subscribers connected to other
// nodes see it too.
func (a *Actor) broadcastLocal(from SubscriberId, t channel.Type, payload interface{}) {
	m, err := channel.Encode(t, payload)
	if err != nil {
		log.Printf("document %s: encode %s: %s", a.docId, t, err)
		return
	}
	for id, sub := range a.subscribers {
		if id == from {
			continue
		}
		select {
		case sub.send <- m:
		default:
		}
	}
	if a.bcast != nil {
		ctx, cancel := context.WithTimeout(context.Background(), bcastTimeout)
		defer cancel()
		if err = a.bcast.Publish(ctx, a.docId, m); err != nil {
			log.Printf("document %s: publish broadcast: %s", a.docId, err)
		}
	}
}

// applyOperation loads the current snapshot, merges the client's operation
// (expressed against sourceVersion) against everything landed since, applies
// the transformed result, bumps the version, logs it, and broadcasts
// document_change to every other subscriber.
func (a *Actor) applyOperation(from SubscriberId, op channel.Operation) error {
	var t sharedTypes.Timed
	t.Begin()
	defer func() {
		t.End()
		if ms := t.Diff(); ms > slowApplyThresholdMs {
			log.Printf("document %s: slow applyOperation: %dms", a.docId, ms)
		}
	}()

	sourceVersion := sharedTypes.Version(op.SourceVersion)

	incoming, err := a.operationToDiff(sourceVersion, op)
	if err != nil {
		if errors.IsVersionConflict(err) {
			a.sendSyncRequired(from)
		}
		return err
	}

	var toApply diffengine.Diff
	if sourceVersion == a.snapshot.Version {
		toApply = incoming
	} else {
		base, getErr := a.log.Get(context.Background(), a.docId, sourceVersion)
		if getErr != nil {
			a.sendSyncRequired(from)
			return &errors.VersionConflictError{
				Msg: "no diff path from sourceVersion " + sourceVersion.String(),
			}
		}
		landed := diffengine.Compute(base, a.snapshot)
		toApply = a.merge.Merge(landed, incoming)
	}

	if err = diffengine.Apply(a.snapshot, toApply); err != nil {
		a.sendSyncRequired(from)
		return &errors.VersionConflictError{Msg: "apply operation: " + err.Error()}
	}
	a.snapshot.Version = a.snapshot.Version.Next()

	ctx := context.Background()
	if err = a.log.Append(ctx, a.docId, a.doc, a.snapshot); err != nil {
		return &errors.StorageUnavailableError{Msg: err.Error()}
	}
	a.doc.CurrentVersion = a.snapshot.Version
	if err = a.log.RecordChange(ctx, store.Change{
		DocumentId:    a.docId,
		Timestamp:     time.Now(),
		SourceVersion: sourceVersion,
		Diff:          toApply,
	}); err != nil {
		log.Printf("document %s: record change: %s", a.docId, err)
	}

	change, err := channel.Encode(channel.TypeDocumentChange, channel.DocumentChange{
		UserId:     a.subscribers[from].userId,
		NewVersion: int64(a.snapshot.Version),
	})
	if err != nil {
		return errors.Tag(err, "encode document_change")
	}
	for id, sub := range a.subscribers {
		if id == from {
			continue
		}
		select {
		case sub.send <- change:
		default:
		}
	}
	if a.bcast != nil {
		bctx, cancel := context.WithTimeout(context.Background(), bcastTimeout)
		defer cancel()
		if err = a.bcast.Publish(bctx, a.docId, change); err != nil {
			log.Printf("document %s: publish broadcast: %s", a.docId, err)
		}
	}
	return nil
}

// operationToDiff builds the single-op diffengine.Diff a channel.Operation
// represents, resolving style/line anchors against the piece the position
// falls in at sourceVersion (the base snapshot the client computed the
// operation from), not against the current live snapshot.
func (a *Actor) operationToDiff(sourceVersion sharedTypes.Version, op channel.Operation) (diffengine.Diff, error) {
	base := a.snapshot
	if sourceVersion != a.snapshot.Version {
		var err error
		base, err = a.log.Get(context.Background(), a.docId, sourceVersion)
		if err != nil {
			return diffengine.Diff{}, &errors.VersionConflictError{
				Msg: "no diff path from sourceVersion " + sourceVersion.String(),
			}
		}
	}

	switch op.Type {
	case "insert":
		return diffengine.Diff{Text: []diffengine.TextComponent{
			{Position: op.Position, Insertion: []rune(op.Content)},
		}}, nil
	case "delete":
		return diffengine.Diff{Text: []diffengine.TextComponent{
			{Position: op.Position, Deletion: op.Length},
		}}, nil
	case "style":
		pieceIndex, offset := base.Table.FindPieceAt(op.Position)
		return diffengine.Diff{Styles: []diffengine.StyleOp{{
			Add: true,
			Range: formatting.StyleRange{
				PieceIndex:    pieceIndex,
				OffsetInPiece: offset,
				Length:        op.Length,
				Styles:        op.Attributes,
			},
		}}}, nil
	case "line":
		pieceIndex, offset := base.Table.FindPieceAt(op.Position)
		lineType := op.Attributes["lineType"]
		if lineType == "" {
			lineType = "paragraph"
		}
		return diffengine.Diff{Lines: []diffengine.LineOp{{
			Add: true,
			Marker: formatting.LineMarker{
				PieceIndex:    pieceIndex,
				OffsetInPiece: offset,
				Type:          lineType,
				Properties:    op.Attributes,
			},
		}}}, nil
	default:
		return diffengine.Diff{}, &errors.ValidationError{Msg: "unknown operation type: " + op.Type}
	}
}
