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

// Package docsnapshot composes a piecetable.Table with its formatting
// overlay into the versioned document snapshot that the rest of the module
// diffs, merges, and persists.
package docsnapshot

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/collabtext/editor-core/pkg/formatting"
	"github.com/collabtext/editor-core/pkg/piecetable"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

type Hash string

type Snapshot struct {
	Version sharedTypes.Version
	Table   *piecetable.Table
	Overlay *formatting.Overlay
}

func New(version sharedTypes.Version, content []rune) *Snapshot {
	return &Snapshot{
		Version: version,
		Table:   piecetable.New(content),
		Overlay: formatting.New(),
	}
}

// InsertText inserts text at pos and rebases the overlay in lock-step.
func (s *Snapshot) InsertText(pos int, text []rune) error {
	edit, err := s.Table.Insert(pos, text)
	if err != nil {
		return err
	}
	s.Overlay.Rebase(edit)
	return nil
}

// DeleteText removes length runes starting at pos and rebases the overlay.
func (s *Snapshot) DeleteText(pos, length int) error {
	edit, err := s.Table.Delete(pos, length)
	if err != nil {
		return err
	}
	s.Overlay.Rebase(edit)
	return nil
}

// Hash returns a git-blob-style sha1 over the snapshot's flattened text.
// Formatting is not part of the hash.
func (s *Snapshot) Hash() Hash {
	text := s.Table.Text()
	d := sha1.New()
	d.Write([]byte("blob " + strconv.Itoa(len(text)) + "\x00"))
	d.Write([]byte(string(text)))
	return Hash(hex.EncodeToString(d.Sum(nil)))
}

// Wire is the serializable form of a Snapshot, used by pkg/store and by
// pkg/channel's sync_response payload. The piece-table buffers and pieces
// are flattened to the top level rather than nested, matching the documented
// wire shape.
type Wire struct {
	Version  sharedTypes.Version          `json:"version"`
	Original string                       `json:"originalBuffer"`
	Add      string                       `json:"addBuffer"`
	Pieces   []piecetable.Piece           `json:"pieces"`
	Styles   []formatting.StyleRange      `json:"styles"`
	Lines    []formatting.LineMarker      `json:"lines"`
	Blocks   []formatting.BlockDescriptor `json:"blocks"`
}

func (s *Snapshot) ToWire() Wire {
	t := s.Table.ToWire()
	return Wire{
		Version:  s.Version,
		Original: t.Original,
		Add:      t.Add,
		Pieces:   t.Pieces,
		Styles:   s.Overlay.Styles,
		Lines:    s.Overlay.Lines,
		Blocks:   s.Overlay.Blocks,
	}
}

func FromWire(w Wire) *Snapshot {
	return &Snapshot{
		Version: w.Version,
		Table: piecetable.FromWire(piecetable.Wire{
			Original: w.Original,
			Add:      w.Add,
			Pieces:   w.Pieces,
		}),
		Overlay: &formatting.Overlay{
			Styles: w.Styles,
			Lines:  w.Lines,
			Blocks: w.Blocks,
		},
	}
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToWire())
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var w Wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = *FromWire(w)
	return nil
}
