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
	"encoding/json"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
	"github.com/collabtext/editor-core/pkg/store"
	"github.com/collabtext/editor-core/pkg/versionlog"
)

const distLockNamespace = "collabdoc-lock"
const flushTimeout = 5 * time.Second

// Hub is the session coordinator: a bounded, LRU-resident set of
// per-document Actors. A cache miss spawns the actor while holding the
// document's DistLock; the lock is released as soon as Get returns, so it
// does not keep another node from running an actor for the same document.
// Evicting an actor out of the LRU flushes its current snapshot to the
// Store first, so nothing is lost on eviction.
type Hub struct {
	store store.Store
	log   *versionlog.Log
	lock  DistLock
	bcast *broadcaster

	mu    sync.Mutex
	cache *lru.Cache[sharedTypes.UUID, *Actor]
}

// NewHub wires a Hub over s, bounding its resident actor set to size
// entries. client backs both the distributed lock and the cross-node
// broadcast fan-out.
func NewHub(ctx context.Context, s store.Store, client redis.UniversalClient, size int) (*Hub, error) {
	lock, err := NewDistLock(client, distLockNamespace)
	if err != nil {
		return nil, errors.Tag(err, "create dist lock")
	}
	bcast := newBroadcaster(client)

	h := &Hub{
		store: s,
		log:   versionlog.New(s),
		lock:  lock,
		bcast: bcast,
	}

	cache, err := lru.NewWithEvict[sharedTypes.UUID, *Actor](size, h.onEvict)
	if err != nil {
		return nil, errors.Tag(err, "create lru cache")
	}
	h.cache = cache

	broadcasts, err := bcast.Listen(ctx)
	if err != nil {
		return nil, errors.Tag(err, "listen for broadcasts")
	}
	go h.forwardBroadcasts(broadcasts)

	return h, nil
}

// onEvict runs synchronously inside whichever Add/Remove call triggered
// it, matching golang-lru's contract that OnEvicted fires inline. It
// flushes the actor's snapshot before letting it go, so an evicted
// document is never silently lost.
func (h *Hub) onEvict(id sharedTypes.UUID, a *Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := h.log.Append(ctx, id, a.doc, a.Snapshot()); err != nil {
		log.Printf("document %s: flush snapshot on evict: %s", id, err)
	}
	a.Stop()
}

// Get returns the live Actor for id, spinning one up on a cache miss while
// holding the document's distributed lock, which is released before Get
// returns.
func (h *Hub) Get(ctx context.Context, id sharedTypes.UUID) (*Actor, error) {
	h.mu.Lock()
	if a, ok := h.cache.Get(id); ok {
		h.mu.Unlock()
		return a, nil
	}
	h.mu.Unlock()

	var a *Actor
	var runErr error
	err := h.lock.RunWithLock(ctx, id, func(lockCtx context.Context) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.cache.Get(id); ok {
			a = existing
			return
		}
		a, runErr = h.spawn(lockCtx, id)
		if runErr == nil {
			h.cache.Add(id, a)
			if bsErr := h.bcast.Subscribe(lockCtx, id); bsErr != nil {
				log.Printf("document %s: subscribe to broadcast: %s", id, bsErr)
			}
		}
	})
	if err != nil {
		return nil, errors.Tag(err, "acquire document lock")
	}
	if runErr != nil {
		return nil, runErr
	}
	return a, nil
}

func (h *Hub) spawn(ctx context.Context, id sharedTypes.UUID) (*Actor, error) {
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, err
		}
		return nil, &errors.StorageUnavailableError{Msg: err.Error()}
	}
	snapshot, err := h.store.GetCurrentSnapshot(ctx, id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, err
		}
		return nil, &errors.StorageUnavailableError{Msg: err.Error()}
	}
	return newActor(doc, snapshot, h.log, h.bcast), nil
}

// Evict removes id from the resident set, flushing it first. Used when a
// document is known to have no more local subscribers, so its actor is
// stopped promptly instead of waiting for LRU pressure.
func (h *Hub) Evict(id sharedTypes.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Remove(id)
}

// forwardBroadcasts re-delivers document_change/cursor_position/etc.
// messages published by other nodes to every local subscriber of a
// document this node also has resident, so a multi-node deployment stays
// consistent without the Actor itself knowing about other nodes.
func (h *Hub) forwardBroadcasts(envelopes <-chan broadcastEnvelope) {
	for env := range envelopes {
		if env.Action != incomingBroadcast || env.Origin == h.bcast.origin {
			continue
		}
		h.mu.Lock()
		a, ok := h.cache.Get(env.DocId)
		h.mu.Unlock()
		if !ok {
			continue
		}
		var m channel.Message
		if err := json.Unmarshal([]byte(env.Msg), &m); err != nil {
			log.Printf("document %s: decode remote broadcast: %s", env.DocId, err)
			continue
		}
		a.deliverRemote(m)
	}
}

// Close stops accepting broadcasts and evicts (flushing) every resident
// actor, concurrently, so a node holding many documents doesn't serialize
// their flushes on shutdown.
func (h *Hub) Close() {
	h.bcast.Close()
	h.mu.Lock()
	keys := h.cache.Keys()
	h.mu.Unlock()

	// lru.Cache guards its own internal state, so concurrent Remove calls
	// (each running onEvict's flush-then-Stop inline) are safe without
	// h.mu; only the check-then-insert in Get needs that outer lock.
	g := new(errgroup.Group)
	for _, id := range keys {
		id := id
		g.Go(func() error {
			h.cache.Remove(id)
			return nil
		})
	}
	_ = g.Wait()
}
