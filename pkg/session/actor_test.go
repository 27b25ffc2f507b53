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

package session

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
	"github.com/collabtext/editor-core/pkg/versionlog"
)

// fakeStore is an in-memory store.Store used to drive an Actor in tests
// without a real database.
type fakeStore struct {
	docs      map[sharedTypes.UUID]store.Document
	snapshots map[sharedTypes.UUID]*docsnapshot.Snapshot
	versions  map[sharedTypes.UUID]map[sharedTypes.Version]*docsnapshot.Snapshot
	changes   map[sharedTypes.UUID][]store.Change
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      map[sharedTypes.UUID]store.Document{},
		snapshots: map[sharedTypes.UUID]*docsnapshot.Snapshot{},
		versions:  map[sharedTypes.UUID]map[sharedTypes.Version]*docsnapshot.Snapshot{},
		changes:   map[sharedTypes.UUID][]store.Change{},
	}
}

func (f *fakeStore) GetDocument(_ context.Context, id sharedTypes.UUID) (store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return store.Document{}, &errors.NotFoundError{}
	}
	return doc, nil
}

func (f *fakeStore) PutDocument(_ context.Context, doc store.Document, current *docsnapshot.Snapshot) error {
	f.docs[doc.Id] = doc
	f.snapshots[doc.Id] = current
	return nil
}

func (f *fakeStore) GetCurrentSnapshot(_ context.Context, id sharedTypes.UUID) (*docsnapshot.Snapshot, error) {
	s, ok := f.snapshots[id]
	if !ok {
		return nil, &errors.NotFoundError{}
	}
	return s, nil
}

func (f *fakeStore) AppendVersion(_ context.Context, id sharedTypes.UUID, snapshot *docsnapshot.Snapshot) error {
	if f.versions[id] == nil {
		f.versions[id] = map[sharedTypes.Version]*docsnapshot.Snapshot{}
	}
	f.versions[id][snapshot.Version] = snapshot
	return nil
}

func (f *fakeStore) GetVersion(_ context.Context, id sharedTypes.UUID, version sharedTypes.Version) (*docsnapshot.Snapshot, error) {
	s, ok := f.versions[id][version]
	if !ok {
		return nil, &errors.NotFoundError{}
	}
	return s, nil
}

func (f *fakeStore) ListVersions(_ context.Context, id sharedTypes.UUID) ([]sharedTypes.Version, error) {
	out := make([]sharedTypes.Version, 0, len(f.versions[id]))
	for v := range f.versions[id] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out, nil
}

func (f *fakeStore) RecordChange(_ context.Context, change store.Change) error {
	f.changes[change.DocumentId] = append(f.changes[change.DocumentId], change)
	return nil
}

func (f *fakeStore) ChangesBetween(_ context.Context, id sharedTypes.UUID, from, to sharedTypes.Version) ([]store.Change, error) {
	var out []store.Change
	for _, c := range f.changes[id] {
		if c.SourceVersion >= from && c.SourceVersion < to {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestActor(t *testing.T, text string) (*Actor, *fakeStore, sharedTypes.UUID) {
	t.Helper()
	id := sharedTypes.UUID{1}
	s := newFakeStore()
	doc := store.Document{Id: id, CurrentVersion: 10}
	snap := docsnapshot.New(10, []rune(text))
	s.docs[id] = doc
	s.snapshots[id] = snap
	s.versions[id] = map[sharedTypes.Version]*docsnapshot.Snapshot{10: snap}

	log := versionlog.New(s)
	a := newActor(doc, snap, log, nil)
	t.Cleanup(a.Stop)
	return a, s, id
}

func recvWithin(t *testing.T, ch <-chan channel.Message, d time.Duration) channel.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(d):
		t.Fatalf("timed out waiting for message")
		return channel.Message{}
	}
}

func TestJoinDeliversDocumentState(t *testing.T) {
	a, _, _ := newTestActor(t, "hello")

	_, outbound, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	m := recvWithin(t, outbound, time.Second)
	if m.Type != channel.TypeDocumentState {
		t.Fatalf("first message type = %s, want %s", m.Type, channel.TypeDocumentState)
	}
	var state channel.DocumentState
	if err = channel.Decode(m, &state); err != nil {
		t.Fatalf("decode document_state: %v", err)
	}
	if state.Version != 10 {
		t.Errorf("state.Version = %d, want 10", state.Version)
	}
}

func TestApplyOperationInsertBumpsVersionAndBroadcasts(t *testing.T) {
	a, s, id := newTestActor(t, "hello world")

	writerId, _, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join writer: %v", err)
	}
	_, readerOutbound, err := a.Join(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Join reader: %v", err)
	}
	recvWithin(t, readerOutbound, time.Second) // bob's own document_state

	err = a.ApplyOperation(context.Background(), writerId, channel.Operation{
		SourceVersion: 10,
		Type:          "insert",
		Position:      5,
		Content:       ",",
	})
	if err != nil {
		t.Fatalf("ApplyOperation: %v", err)
	}

	if a.Snapshot().Version != 11 {
		t.Errorf("Snapshot().Version = %v, want 11", a.Snapshot().Version)
	}
	if got := string(a.Snapshot().Table.Text()); got != "hello, world" {
		t.Errorf("Snapshot text = %q, want %q", got, "hello, world")
	}

	change := recvWithin(t, readerOutbound, time.Second)
	if change.Type != channel.TypeDocumentChange {
		t.Fatalf("bob's message type = %s, want %s", change.Type, channel.TypeDocumentChange)
	}

	if _, ok := s.versions[id][11]; !ok {
		t.Error("new version was not persisted via the log")
	}
	if len(s.changes[id]) != 1 {
		t.Errorf("recorded changes = %d, want 1", len(s.changes[id]))
	}
}

func TestApplyOperationStaleSourceVersionWithNoBaseSendsSyncRequired(t *testing.T) {
	a, _, _ := newTestActor(t, "hello world")

	subId, outbound, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	recvWithin(t, outbound, time.Second) // document_state

	err = a.ApplyOperation(context.Background(), subId, channel.Operation{
		SourceVersion: 0, // never logged
		Type:          "insert",
		Position:      0,
		Content:       "x",
	})
	if !errors.IsVersionConflict(err) {
		t.Fatalf("ApplyOperation error = %v, want a version conflict", err)
	}

	m := recvWithin(t, outbound, time.Second)
	if m.Type != channel.TypeSyncRequired {
		t.Fatalf("message type = %s, want %s", m.Type, channel.TypeSyncRequired)
	}
}

func TestLeaveBroadcastsUserDisconnected(t *testing.T) {
	a, _, _ := newTestActor(t, "hello")

	aliceId, _, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	_, bobOutbound, err := a.Join(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	recvWithin(t, bobOutbound, time.Second) // bob's own document_state

	if err = a.Leave(context.Background(), aliceId); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	m := recvWithin(t, bobOutbound, time.Second)
	if m.Type != channel.TypeUserDisconnected {
		t.Fatalf("message type = %s, want %s", m.Type, channel.TypeUserDisconnected)
	}
	var payload channel.UserDisconnected
	if err = channel.Decode(m, &payload); err != nil {
		t.Fatalf("decode user_disconnected: %v", err)
	}
	if payload.UserId != "alice" {
		t.Errorf("payload.UserId = %q, want %q", payload.UserId, "alice")
	}
}

func TestCursorUpdateBroadcastsToOthersNotSelf(t *testing.T) {
	a, _, _ := newTestActor(t, "hello")

	aliceId, aliceOutbound, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	recvWithin(t, aliceOutbound, time.Second) // alice's own document_state
	_, bobOutbound, err := a.Join(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	recvWithin(t, bobOutbound, time.Second) // bob's own document_state

	if err = a.CursorUpdate(context.Background(), aliceId, 3); err != nil {
		t.Fatalf("CursorUpdate: %v", err)
	}

	m := recvWithin(t, bobOutbound, time.Second)
	if m.Type != channel.TypeCursorPosition {
		t.Fatalf("bob's message type = %s, want %s", m.Type, channel.TypeCursorPosition)
	}

	select {
	case m := <-aliceOutbound:
		t.Fatalf("alice should not receive her own cursor update, got %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSyncRequestReturnsCurrentSnapshot(t *testing.T) {
	a, _, _ := newTestActor(t, "hello")

	subId, outbound, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	recvWithin(t, outbound, time.Second) // document_state

	if err = a.SyncRequest(context.Background(), subId); err != nil {
		t.Fatalf("SyncRequest: %v", err)
	}

	m := recvWithin(t, outbound, time.Second)
	if m.Type != channel.TypeSyncResponse {
		t.Fatalf("message type = %s, want %s", m.Type, channel.TypeSyncResponse)
	}
}

func TestStopClosesSubscriberChannels(t *testing.T) {
	a, _, _ := newTestActor(t, "hello")

	_, outbound, err := a.Join(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	recvWithin(t, outbound, time.Second) // document_state

	a.Stop()

	select {
	case _, ok := <-outbound:
		if ok {
			t.Fatalf("expected outbound channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("outbound channel was never closed after Stop")
	}
}
