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

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/channel/wschannel"
	"github.com/collabtext/editor-core/pkg/session"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

// newSocketHandler wires one websocket connection per subscriber: it joins
// the document's Actor, pumps the actor's outbound messages to the socket
// and the socket's inbound messages to the actor, and leaves on either
// side closing.
func newSocketHandler(hub *session.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docId, err := sharedTypes.ParseUUID(mux.Vars(r)["docId"])
		if err != nil {
			http.Error(w, "malformed docId", http.StatusBadRequest)
			return
		}

		ch, err := wschannel.Upgrade(w, r)
		if err != nil {
			log.Printf("document %s: upgrade: %s", docId, err)
			return
		}

		actor, err := hub.Get(r.Context(), docId)
		if err != nil {
			log.Printf("document %s: get actor: %s", docId, err)
			_ = ch.CloseWithCode(wschannel.CloseInternalError)
			return
		}

		userId := r.URL.Query().Get("userId")
		if userId == "" {
			userId = randomUserId()
		}

		ctx := r.Context()
		subId, outbound, err := actor.Join(ctx, userId)
		if err != nil {
			log.Printf("document %s: join: %s", docId, err)
			_ = ch.CloseWithCode(wschannel.CloseInternalError)
			return
		}
		defer func() { _ = actor.Leave(context.Background(), subId) }()

		done := make(chan struct{})
		go writeLoop(ch, outbound, done)
		readLoop(ctx, ch, actor, subId)
		close(done)
		_ = ch.Close()
	}
}

func writeLoop(ch *wschannel.Channel, outbound <-chan channel.Message, done <-chan struct{}) {
	for {
		select {
		case m, ok := <-outbound:
			if !ok {
				return
			}
			if err := ch.Send(context.Background(), m); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func readLoop(ctx context.Context, ch *wschannel.Channel, actor *session.Actor, subId session.SubscriberId) {
	for {
		m, err := ch.Recv(ctx)
		if err != nil {
			return
		}
		if err = dispatch(ctx, actor, subId, m); err != nil {
			log.Printf("dispatch %s: %s", m.Type, err)
		}
	}
}

func dispatch(ctx context.Context, actor *session.Actor, subId session.SubscriberId, m channel.Message) error {
	switch m.Type {
	case channel.TypeOperation:
		var op channel.Operation
		if err := channel.Decode(m, &op); err != nil {
			return err
		}
		return actor.ApplyOperation(ctx, subId, op)
	case channel.TypeCursorUpdate:
		var cu channel.CursorUpdate
		if err := channel.Decode(m, &cu); err != nil {
			return err
		}
		return actor.CursorUpdate(ctx, subId, cu.Position)
	case channel.TypeSyncRequest:
		return actor.SyncRequest(ctx, subId)
	default:
		return nil
	}
}

func randomUserId() string {
	raw := make([]byte, 8)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}
