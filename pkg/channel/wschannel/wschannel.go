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

// Package wschannel implements channel.Channel over a gorilla/websocket
// connection: one JSON frame per channel.Message, in either direction.
package wschannel

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabtext/editor-core/pkg/channel"
	"github.com/collabtext/editor-core/pkg/errors"
)

const (
	readTimeout  = time.Minute
	writeTimeout = 10 * time.Second

	// CloseAuthFailure is sent when a subscriber fails authentication or
	// session setup.
	CloseAuthFailure = 4000
	// CloseInternalError is sent on an unrecoverable internal error.
	CloseInternalError = 1011
)

var upgrader = websocket.Upgrader{}

// Upgrade promotes an HTTP request to a wschannel-backed Channel.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Channel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		return nil, errors.Tag(err, "upgrade websocket")
	}
	return &Channel{conn: conn}, nil
}

type Channel struct {
	conn *websocket.Conn
}

func (c *Channel) Send(_ context.Context, m channel.Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Tag(err, "set write deadline")
	}
	if err := c.conn.WriteJSON(m); err != nil {
		return errors.Tag(err, "write message")
	}
	return nil
}

func (c *Channel) Recv(_ context.Context) (channel.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return channel.Message{}, errors.Tag(err, "set read deadline")
	}
	var m channel.Message
	if err := c.conn.ReadJSON(&m); err != nil {
		return channel.Message{}, errors.Tag(err, "read message")
	}
	if err := m.Validate(); err != nil {
		return channel.Message{}, err
	}
	return m, nil
}

// CloseWithCode sends a close frame carrying code before closing the
// underlying connection.
func (c *Channel) CloseWithCode(code int) error {
	data := websocket.FormatCloseMessage(code, "")
	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, data, deadline)
	return c.conn.Close()
}

func (c *Channel) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure)
}
