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

// Package piecetable implements the piece-table text representation: two
// append-only rune buffers (original and add) plus an ordered list of
// pieces referencing spans of either buffer.
package piecetable

import (
	"github.com/collabtext/editor-core/pkg/errors"
)

type Buffer uint8

const (
	Original Buffer = iota
	Add
)

type Piece struct {
	Buffer    Buffer `json:"buffer_type"`
	Start     int    `json:"start"`
	Length    int    `json:"length"`
	LineStart bool   `json:"line_start"`
}

type Table struct {
	original []rune
	add      []rune
	pieces   []Piece
}

// New builds a table seeded with initial content as the sole original-buffer
// piece.
func New(initial []rune) *Table {
	t := &Table{original: append([]rune(nil), initial...)}
	if len(t.original) > 0 {
		t.pieces = append(t.pieces, Piece{Buffer: Original, Start: 0, Length: len(t.original), LineStart: true})
	}
	return t
}

func (t *Table) Len() int {
	n := 0
	for _, p := range t.pieces {
		n += p.Length
	}
	return n
}

func (t *Table) PieceCount() int {
	return len(t.pieces)
}

func (t *Table) Piece(i int) Piece {
	return t.pieces[i]
}

func (t *Table) bufferFor(b Buffer) []rune {
	if b == Original {
		return t.original
	}
	return t.add
}

// Text returns the full document content.
func (t *Table) Text() []rune {
	out := make([]rune, 0, t.Len())
	for _, p := range t.pieces {
		out = append(out, t.bufferFor(p.Buffer)[p.Start:p.Start+p.Length]...)
	}
	return out
}

// TextRange returns the content in [start, end).
func (t *Table) TextRange(start, end int) ([]rune, error) {
	if start < 0 || end < start || end > t.Len() {
		return nil, &errors.ValidationError{Msg: "range out of bounds"}
	}
	out := make([]rune, 0, end-start)
	pos := 0
	for _, p := range t.pieces {
		pieceEnd := pos + p.Length
		if pieceEnd > start && pos < end {
			lo := start
			if pos > lo {
				lo = pos
			}
			hi := end
			if pieceEnd < hi {
				hi = pieceEnd
			}
			buf := t.bufferFor(p.Buffer)
			out = append(out, buf[p.Start+(lo-pos):p.Start+(hi-pos)]...)
		}
		pos = pieceEnd
		if pos >= end {
			break
		}
	}
	return out, nil
}

// FindPieceAt returns the piece index and the offset within that piece for
// a document-wide rune position. A position at the end of the document
// returns (PieceCount(), 0).
func (t *Table) FindPieceAt(pos int) (index, offset int) {
	curr := 0
	for i, p := range t.pieces {
		if pos >= curr && pos < curr+p.Length {
			return i, pos - curr
		}
		curr += p.Length
	}
	return len(t.pieces), 0
}

// Edit describes how a mutation reshaped the piece list, so that a
// formatting overlay anchored on (pieceIndex, offsetInPiece) pairs can
// rebase its anchors in lock-step. Remap is nil for no-op edits.
type Edit struct {
	Remap func(pieceIndex, offsetInPiece int) (newPieceIndex, newOffsetInPiece int, keep bool)
}

func identityRemap(pi, off int) (int, int, bool) {
	return pi, off, true
}

// Insert splices text into the table at pos, splitting the piece at pos if
// necessary, and returns the Edit needed to rebase overlay anchors.
func (t *Table) Insert(pos int, text []rune) (Edit, error) {
	if pos < 0 || pos > t.Len() {
		return Edit{}, &errors.ValidationError{Msg: "insert position out of range"}
	}
	if len(text) == 0 {
		return Edit{Remap: identityRemap}, nil
	}

	index, offset := t.FindPieceAt(pos)
	addStart := len(t.add)
	t.add = append(t.add, text...)
	newPiece := Piece{Buffer: Add, Start: addStart, Length: len(text)}

	switch {
	case index == len(t.pieces):
		t.pieces = append(t.pieces, newPiece)
		return Edit{Remap: identityRemap}, nil
	case offset == 0:
		t.pieces = append(t.pieces, Piece{})
		copy(t.pieces[index+1:], t.pieces[index:len(t.pieces)-1])
		t.pieces[index] = newPiece
		return Edit{Remap: makeInsertRemap(index, 0, 1)}, nil
	default:
		old := t.pieces[index]
		first := Piece{Buffer: old.Buffer, Start: old.Start, Length: offset, LineStart: old.LineStart}
		second := Piece{Buffer: old.Buffer, Start: old.Start + offset, Length: old.Length - offset}
		t.pieces = append(t.pieces, Piece{}, Piece{})
		copy(t.pieces[index+3:], t.pieces[index+1:len(t.pieces)-2])
		t.pieces[index] = first
		t.pieces[index+1] = newPiece
		t.pieces[index+2] = second
		return Edit{Remap: makeInsertRemap(index, offset, 2)}, nil
	}
}

func makeInsertRemap(pieceIndex, splitOffset, indexShift int) func(int, int) (int, int, bool) {
	return func(pi, off int) (int, int, bool) {
		switch {
		case pi < pieceIndex:
			return pi, off, true
		case pi > pieceIndex:
			return pi + indexShift, off, true
		default:
			if splitOffset == 0 {
				return pi + indexShift, off, true
			}
			if off >= splitOffset {
				return pi + indexShift, off - splitOffset, true
			}
			return pi, off, true
		}
	}
}

// Delete removes length runes starting at pos and returns the Edit needed to
// rebase overlay anchors; anchors wholly inside the removed range are
// dropped (keep=false).
func (t *Table) Delete(pos, length int) (Edit, error) {
	if length < 0 || pos < 0 || pos+length > t.Len() {
		return Edit{}, &errors.ValidationError{Msg: "delete range out of bounds"}
	}
	if length == 0 {
		return Edit{Remap: identityRemap}, nil
	}

	startIndex, startOffset := t.FindPieceAt(pos)
	endIndex, endOffset := t.FindPieceAt(pos + length)

	newPieces := make([]Piece, 0, len(t.pieces))
	newIndexOfHead := make([]int, len(t.pieces))
	splitTailOldIndex := -1
	splitTailNewIndex := -1

	for i, p := range t.pieces {
		switch {
		case i < startIndex || i > endIndex:
			newIndexOfHead[i] = len(newPieces)
			newPieces = append(newPieces, p)
		case i == startIndex && i == endIndex:
			if startOffset > 0 {
				newIndexOfHead[i] = len(newPieces)
				newPieces = append(newPieces, Piece{Buffer: p.Buffer, Start: p.Start, Length: startOffset, LineStart: p.LineStart})
			} else {
				newIndexOfHead[i] = -1
			}
			if endOffset < p.Length {
				splitTailOldIndex = i
				splitTailNewIndex = len(newPieces)
				newPieces = append(newPieces, Piece{Buffer: p.Buffer, Start: p.Start + endOffset, Length: p.Length - endOffset})
			}
		case i == startIndex:
			if startOffset > 0 {
				newIndexOfHead[i] = len(newPieces)
				newPieces = append(newPieces, Piece{Buffer: p.Buffer, Start: p.Start, Length: startOffset, LineStart: p.LineStart})
			} else {
				newIndexOfHead[i] = -1
			}
		case i == endIndex:
			if endOffset < p.Length {
				newIndexOfHead[i] = len(newPieces)
				newPieces = append(newPieces, Piece{Buffer: p.Buffer, Start: p.Start + endOffset, Length: p.Length - endOffset})
			} else {
				newIndexOfHead[i] = -1
			}
		default:
			newIndexOfHead[i] = -1
		}
	}
	t.pieces = newPieces

	remap := func(pi, off int) (int, int, bool) {
		if pi == splitTailOldIndex && off >= endOffset {
			return splitTailNewIndex, off - endOffset, true
		}
		switch {
		case pi < startIndex:
			return newIndexOfHead[pi], off, true
		case pi == startIndex:
			if off < startOffset {
				return newIndexOfHead[pi], off, true
			}
			return 0, 0, false
		case pi > startIndex && pi < endIndex:
			return 0, 0, false
		case pi == endIndex:
			if off >= endOffset {
				return newIndexOfHead[pi], off - endOffset, true
			}
			return 0, 0, false
		default:
			return newIndexOfHead[pi], off, true
		}
	}
	return Edit{Remap: remap}, nil
}

// ToWire returns a flat, serializable view of the table's buffers and
// pieces.
type Wire struct {
	Original string  `json:"originalBuffer"`
	Add      string  `json:"addBuffer"`
	Pieces   []Piece `json:"pieces"`
}

func (t *Table) ToWire() Wire {
	return Wire{
		Original: string(t.original),
		Add:      string(t.add),
		Pieces:   append([]Piece(nil), t.pieces...),
	}
}

func FromWire(w Wire) *Table {
	return &Table{
		original: []rune(w.Original),
		add:      []rune(w.Add),
		pieces:   append([]Piece(nil), w.Pieces...),
	}
}
