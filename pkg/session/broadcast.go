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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

// broadcastAction distinguishes a fanned-out document message from the
// bookkeeping event that fires when Redis itself drops a subscription.
type broadcastAction int

const (
	incomingBroadcast broadcastAction = iota
	unsubscribedBroadcast
)

type broadcastEnvelope struct {
	Msg    string
	DocId  sharedTypes.UUID
	Action broadcastAction
	Origin string
}

// wireEnvelope is the JSON shape published to Redis: the raw channel.Message
// plus the publishing node's Origin, so a node can recognize and skip its
// own echoes coming back through the broadcast channel instead of
// re-delivering a change to the subscribers that produced it.
type wireEnvelope struct {
	Origin string          `json:"origin"`
	Msg    json.RawMessage `json:"msg"`
}

const broadcastBase = "collabdoc-broadcast"

func broadcastChannelName(id sharedTypes.UUID) string {
	return broadcastBase + ":{" + id.String() + "}"
}

// broadcaster fans a coordinator's locally-applied channel.Message out to
// every other node hosting a subscriber for the same document, over a
// per-document Redis pub/sub channel. It decides nothing about ordering —
// the owning actor already serialized the change before publishing it.
type broadcaster struct {
	client redis.UniversalClient
	pubsub *redis.PubSub
	origin string
}

func newBroadcaster(client redis.UniversalClient) *broadcaster {
	raw := make([]byte, 8)
	_, _ = rand.Read(raw)
	return &broadcaster{client: client, origin: hex.EncodeToString(raw)}
}

func (b *broadcaster) Publish(ctx context.Context, id sharedTypes.UUID, m channel.Message) error {
	msg, err := json.Marshal(m)
	if err != nil {
		return errors.Tag(err, "encode broadcast message")
	}
	body, err := json.Marshal(wireEnvelope{Origin: b.origin, Msg: msg})
	if err != nil {
		return errors.Tag(err, "encode broadcast envelope")
	}
	if err = b.client.Publish(ctx, broadcastChannelName(id), body).Err(); err != nil {
		return errors.Tag(err, "publish broadcast message")
	}
	return nil
}

func (b *broadcaster) Subscribe(ctx context.Context, id sharedTypes.UUID) error {
	if b.pubsub == nil {
		return &errors.InvalidStateError{Msg: "broadcaster is not listening"}
	}
	return b.pubsub.Subscribe(ctx, broadcastChannelName(id))
}

func (b *broadcaster) Unsubscribe(ctx context.Context, id sharedTypes.UUID) error {
	return b.pubsub.Unsubscribe(ctx, broadcastChannelName(id))
}

// Listen starts the background receive loop and returns the channel fanned
// broadcasts (and unsubscribe notices) arrive on. Failed receives retry
// with exponential backoff, capped at 5s.
func (b *broadcaster) Listen(ctx context.Context) (<-chan broadcastEnvelope, error) {
	b.pubsub = b.client.Subscribe(ctx, broadcastBase)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return nil, errors.Tag(err, "subscribe to broadcast base channel")
	}

	out := make(chan broadcastEnvelope, 100)
	go func() {
		defer close(out)
		nFailed := 0
		for {
			raw, err := b.pubsub.Receive(ctx)
			if err != nil {
				if err == redis.ErrClosed {
					return
				}
				nFailed++
				time.Sleep(time.Duration(math.Min(
					float64(5*time.Second),
					math.Pow(2, float64(nFailed))*float64(time.Millisecond),
				)))
				continue
			}
			nFailed = 0
			switch msg := raw.(type) {
			case *redis.Subscription:
				if msg.Kind != "unsubscribe" {
					continue
				}
				id, errId := parseDocIdFromChannel(msg.Channel)
				if errId != nil {
					continue
				}
				out <- broadcastEnvelope{DocId: id, Action: unsubscribedBroadcast}
			case *redis.Message:
				id, errId := parseDocIdFromChannel(msg.Channel)
				if errId != nil {
					continue
				}
				var wire wireEnvelope
				if errJSON := json.Unmarshal([]byte(msg.Payload), &wire); errJSON != nil {
					continue
				}
				out <- broadcastEnvelope{
					Msg:    string(wire.Msg),
					DocId:  id,
					Action: incomingBroadcast,
					Origin: wire.Origin,
				}
			}
		}
	}()
	return out, nil
}

func (b *broadcaster) Close() {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
}

func parseDocIdFromChannel(s string) (sharedTypes.UUID, error) {
	prefix := broadcastBase + ":{"
	if len(s) != len(prefix)+36+1 || s[:len(prefix)] != prefix || s[len(s)-1] != '}' {
		return sharedTypes.UUID{}, &errors.ValidationError{Msg: "malformed broadcast channel name"}
	}
	return sharedTypes.ParseUUID(s[len(prefix) : len(s)-1])
}
