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
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
	"github.com/collabtext/editor-core/pkg/versionlog"
)

// fakeLock runs the critical section inline, without any real locking, so
// Hub tests can exercise Get/spawn without a Redis connection.
type fakeLock struct{}

func (fakeLock) RunWithLock(ctx context.Context, _ sharedTypes.UUID, r Runner) error {
	r(ctx)
	return nil
}

func (fakeLock) TryRunWithLock(ctx context.Context, _ sharedTypes.UUID, r Runner) error {
	r(ctx)
	return nil
}

func newTestHub(t *testing.T, s *fakeStore, size int) *Hub {
	t.Helper()
	h := &Hub{
		store: s,
		log:   versionlog.New(s),
		lock:  fakeLock{},
		bcast: newBroadcaster(nil),
	}
	cache, err := lru.NewWithEvict[sharedTypes.UUID, *Actor](size, h.onEvict)
	if err != nil {
		t.Fatalf("new lru cache: %v", err)
	}
	h.cache = cache
	return h
}

func TestHubGetSpawnsAndCachesActor(t *testing.T) {
	s := newFakeStore()
	id := sharedTypes.UUID{3}
	s.docs[id] = store.Document{Id: id, CurrentVersion: 10}
	s.snapshots[id] = docsnapshot.New(10, []rune("hello"))

	h := newTestHub(t, s, 8)
	t.Cleanup(h.Close)

	a1, err := h.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a2, err := h.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if a1 != a2 {
		t.Error("Get returned a different Actor on a cache hit")
	}
}

func TestHubGetMissingDocumentIsNotFound(t *testing.T) {
	s := newFakeStore()
	h := newTestHub(t, s, 8)
	t.Cleanup(h.Close)

	_, err := h.Get(context.Background(), sharedTypes.UUID{9})
	if !errors.IsNotFoundError(err) {
		t.Fatalf("Get error = %v, want a not-found error", err)
	}
}

func TestHubEvictFlushesSnapshotToStore(t *testing.T) {
	s := newFakeStore()
	id := sharedTypes.UUID{4}
	s.docs[id] = store.Document{Id: id, CurrentVersion: 10}
	s.snapshots[id] = docsnapshot.New(10, []rune("hello"))

	h := newTestHub(t, s, 8)
	t.Cleanup(h.Close)

	a, err := h.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a.snapshot.Version = 20

	h.Evict(id)

	flushed, ok := s.snapshots[id]
	if !ok {
		t.Fatal("expected snapshot to be flushed to the store on evict")
	}
	if flushed.Version != 20 {
		t.Errorf("flushed snapshot version = %v, want 20", flushed.Version)
	}
}

func TestHubCloseEvictsEveryResidentActor(t *testing.T) {
	s := newFakeStore()
	ids := []sharedTypes.UUID{{5}, {6}, {7}}
	for _, id := range ids {
		s.docs[id] = store.Document{Id: id, CurrentVersion: 10}
		s.snapshots[id] = docsnapshot.New(10, []rune("x"))
	}

	h := newTestHub(t, s, 8)
	for _, id := range ids {
		if _, err := h.Get(context.Background(), id); err != nil {
			t.Fatalf("Get(%v): %v", id, err)
		}
	}

	h.Close()

	if h.cache.Len() != 0 {
		t.Errorf("cache still has %d entries after Close", h.cache.Len())
	}
}
