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

// Package channel defines the abstract transport a SessionCoordinator talks
// through — one logical JSON message per frame, in either direction — plus
// the fixed set of inbound and outbound message types a document session
// exchanges with its subscribers. A concrete transport (pkg/channel/wschannel)
// implements Channel; pkg/session depends only on this interface.
package channel

import (
	"context"
	"encoding/json"

	"github.com/collabtext/editor-core/pkg/errors"
)

type Type string

const (
	// Inbound, subscriber to coordinator.
	TypeOperation    = Type("operation")
	TypeCursorUpdate = Type("cursor_update")
	TypeSyncRequest  = Type("sync_request")

	// Outbound, coordinator to subscriber.
	TypeDocumentState   = Type("document_state")
	TypeDocumentChange  = Type("document_change")
	TypeSyncRequired    = Type("sync_required")
	TypeSyncResponse    = Type("sync_response")
	TypeCursorPosition  = Type("cursor_position")
	TypeUserDisconnected = Type("user_disconnected")
)

// Message is one logical frame: a discriminator plus its raw JSON body,
// splitting "what kind" from "the typed payload" so callers decode the
// body only once they know the type.
type Message struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

func (m Message) Validate() error {
	if m.Type == "" {
		return &errors.ValidationError{Msg: "missing message type"}
	}
	return nil
}

// Encode builds a Message by marshalling payload into the Body.
func Encode(t Type, payload interface{}) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Tag(err, "marshal message body")
	}
	return Message{Type: t, Body: body}, nil
}

// Decode unmarshal's m's Body into payload.
func Decode(m Message, payload interface{}) error {
	if len(m.Body) == 0 {
		return &errors.ValidationError{Msg: "missing message body"}
	}
	if err := json.Unmarshal(m.Body, payload); err != nil {
		return errors.Tag(err, "unmarshal message body")
	}
	return nil
}

// Channel is a duplex, message-framed connection to one subscriber. Send
// and Recv may be called concurrently with each other but Recv must only
// ever be called from a single goroutine, matching how gorilla/websocket's
// Conn is safe for one concurrent reader and one concurrent writer.
type Channel interface {
	Send(ctx context.Context, m Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Operation is the inbound payload of a "operation" message.
type Operation struct {
	SourceVersion int64   `json:"sourceVersion"`
	Type          string  `json:"type"`
	Position      int     `json:"position"`
	Content       string  `json:"content,omitempty"`
	Length        int     `json:"length,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

type CursorUpdate struct {
	Position int `json:"position"`
}

type DocumentState struct {
	Content     json.RawMessage   `json:"content"`
	Version     int64             `json:"version"`
	ActiveUsers []string          `json:"active_users"`
}

type DocumentChange struct {
	Change     json.RawMessage `json:"change"`
	UserId     string          `json:"user_id"`
	NewVersion int64           `json:"new_version"`
}

type SyncRequired struct {
	CurrentVersion int64 `json:"currentVersion"`
}

type SyncResponse struct {
	Content json.RawMessage `json:"content"`
	Version int64           `json:"version"`
}

type CursorPosition struct {
	UserId   string `json:"user_id"`
	Position int    `json:"position"`
}

type UserDisconnected struct {
	UserId string `json:"user_id"`
}
