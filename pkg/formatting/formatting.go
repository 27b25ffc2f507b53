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

// Package formatting implements the style/line/block overlay anchored on
// (pieceIndex, offsetInPiece) coordinates into a piecetable.Table.
package formatting

import (
	"sort"

	"github.com/collabtext/editor-core/pkg/piecetable"
)

type StyleRange struct {
	PieceIndex    int               `json:"piece_index"`
	OffsetInPiece int               `json:"start_offset"`
	Length        int               `json:"length"`
	Priority      int               `json:"priority,omitempty"`
	Styles        map[string]string `json:"attributes"`
}

func (s StyleRange) overlaps(other StyleRange) bool {
	if s.PieceIndex != other.PieceIndex {
		return false
	}
	selfEnd := s.OffsetInPiece + s.Length
	otherEnd := other.OffsetInPiece + other.Length
	return !(selfEnd <= other.OffsetInPiece || otherEnd <= s.OffsetInPiece)
}

func (s StyleRange) sharesKey(other StyleRange) bool {
	for k := range other.Styles {
		if _, ok := s.Styles[k]; ok {
			return true
		}
	}
	return false
}

type LineMarker struct {
	PieceIndex    int               `json:"piece_index"`
	OffsetInPiece int               `json:"offset"`
	Type          string            `json:"type"`
	Properties    map[string]string `json:"properties"`
}

type BlockDescriptor struct {
	StartPieceIndex int               `json:"start_piece_index"`
	StartOffset     int               `json:"start_offset"`
	EndPieceIndex   int               `json:"end_piece_index"`
	EndOffset       int               `json:"end_offset"`
	Type            string            `json:"type"`
	Properties      map[string]string `json:"properties"`
}

func (b BlockDescriptor) ContainsPosition(pieceIndex, offset int) bool {
	if pieceIndex < b.StartPieceIndex || pieceIndex > b.EndPieceIndex {
		return false
	}
	if pieceIndex == b.StartPieceIndex && offset < b.StartOffset {
		return false
	}
	if pieceIndex == b.EndPieceIndex && offset > b.EndOffset {
		return false
	}
	return true
}

func blocksOverlap(a, b BlockDescriptor) bool {
	if a.StartPieceIndex > b.EndPieceIndex || b.StartPieceIndex > a.EndPieceIndex {
		return false
	}
	if a.StartPieceIndex == b.EndPieceIndex && a.StartOffset >= b.EndOffset {
		return false
	}
	if b.StartPieceIndex == a.EndPieceIndex && b.StartOffset >= a.EndOffset {
		return false
	}
	return true
}

// Overlay holds the style ranges, line markers, and block descriptors
// attached to a single piecetable.Table.
type Overlay struct {
	Styles []StyleRange
	Lines  []LineMarker
	Blocks []BlockDescriptor
}

func New() *Overlay {
	return &Overlay{}
}

// AddStyle inserts style, first removing any existing ranges that overlap it
// and share at least one attribute key — matching the last-writer-wins rule
// for a single style attribute.
func (o *Overlay) AddStyle(style StyleRange) {
	kept := o.Styles[:0:0]
	for _, s := range o.Styles {
		if s.overlaps(style) && s.sharesKey(style) {
			continue
		}
		kept = append(kept, s)
	}
	o.Styles = append(kept, style)
	sort.SliceStable(o.Styles, func(i, j int) bool {
		if o.Styles[i].PieceIndex != o.Styles[j].PieceIndex {
			return o.Styles[i].PieceIndex < o.Styles[j].PieceIndex
		}
		return o.Styles[i].OffsetInPiece < o.Styles[j].OffsetInPiece
	})
}

// AddLineMarker inserts marker, replacing any existing marker at the same
// anchor coordinate.
func (o *Overlay) AddLineMarker(marker LineMarker) {
	kept := o.Lines[:0:0]
	for _, l := range o.Lines {
		if l.PieceIndex == marker.PieceIndex && l.OffsetInPiece == marker.OffsetInPiece {
			continue
		}
		kept = append(kept, l)
	}
	o.Lines = append(kept, marker)
	sort.SliceStable(o.Lines, func(i, j int) bool {
		if o.Lines[i].PieceIndex != o.Lines[j].PieceIndex {
			return o.Lines[i].PieceIndex < o.Lines[j].PieceIndex
		}
		return o.Lines[i].OffsetInPiece < o.Lines[j].OffsetInPiece
	})
}

// AddBlock inserts block, removing any existing block of the same type that
// overlaps it.
func (o *Overlay) AddBlock(block BlockDescriptor) {
	kept := o.Blocks[:0:0]
	for _, b := range o.Blocks {
		if b.Type == block.Type && blocksOverlap(b, block) {
			continue
		}
		kept = append(kept, b)
	}
	o.Blocks = append(kept, block)
	sort.SliceStable(o.Blocks, func(i, j int) bool {
		if o.Blocks[i].StartPieceIndex != o.Blocks[j].StartPieceIndex {
			return o.Blocks[i].StartPieceIndex < o.Blocks[j].StartPieceIndex
		}
		return o.Blocks[i].StartOffset < o.Blocks[j].StartOffset
	})
}

// RemoveStyle drops the style range anchored at the exact same coordinate
// and length as style, if any.
func (o *Overlay) RemoveStyle(style StyleRange) {
	kept := o.Styles[:0:0]
	for _, s := range o.Styles {
		if s.PieceIndex == style.PieceIndex && s.OffsetInPiece == style.OffsetInPiece && s.Length == style.Length {
			continue
		}
		kept = append(kept, s)
	}
	o.Styles = kept
}

func (o *Overlay) RemoveLineMarker(marker LineMarker) {
	kept := o.Lines[:0:0]
	for _, l := range o.Lines {
		if l.PieceIndex == marker.PieceIndex && l.OffsetInPiece == marker.OffsetInPiece {
			continue
		}
		kept = append(kept, l)
	}
	o.Lines = kept
}

func (o *Overlay) RemoveBlock(block BlockDescriptor) {
	kept := o.Blocks[:0:0]
	for _, b := range o.Blocks {
		if b.StartPieceIndex == block.StartPieceIndex && b.StartOffset == block.StartOffset &&
			b.EndPieceIndex == block.EndPieceIndex && b.EndOffset == block.EndOffset && b.Type == block.Type {
			continue
		}
		kept = append(kept, b)
	}
	o.Blocks = kept
}

func (o *Overlay) StylesAt(pieceIndex, offset int) []StyleRange {
	var out []StyleRange
	for _, s := range o.Styles {
		if s.PieceIndex == pieceIndex && s.OffsetInPiece <= offset && offset < s.OffsetInPiece+s.Length {
			out = append(out, s)
		}
	}
	return out
}

// LineAt returns the most recent line marker at or before the given
// position, searching from the tail of the (sorted) slice.
func (o *Overlay) LineAt(pieceIndex, offset int) (LineMarker, bool) {
	for i := len(o.Lines) - 1; i >= 0; i-- {
		l := o.Lines[i]
		if l.PieceIndex < pieceIndex || (l.PieceIndex == pieceIndex && l.OffsetInPiece <= offset) {
			return l, true
		}
	}
	return LineMarker{}, false
}

func (o *Overlay) BlockAt(pieceIndex, offset int) (BlockDescriptor, bool) {
	for _, b := range o.Blocks {
		if b.ContainsPosition(pieceIndex, offset) {
			return b, true
		}
	}
	return BlockDescriptor{}, false
}

// Rebase applies a piecetable.Edit's anchor-remap function to every style,
// line, and block anchor (both ends, for blocks). Anchors whose piece was
// removed entirely are dropped.
func (o *Overlay) Rebase(edit piecetable.Edit) {
	if edit.Remap == nil {
		return
	}
	styles := o.Styles[:0:0]
	for _, s := range o.Styles {
		if pi, off, keep := edit.Remap(s.PieceIndex, s.OffsetInPiece); keep {
			s.PieceIndex, s.OffsetInPiece = pi, off
			styles = append(styles, s)
		}
	}
	o.Styles = styles

	lines := o.Lines[:0:0]
	for _, l := range o.Lines {
		if pi, off, keep := edit.Remap(l.PieceIndex, l.OffsetInPiece); keep {
			l.PieceIndex, l.OffsetInPiece = pi, off
			lines = append(lines, l)
		}
	}
	o.Lines = lines

	blocks := o.Blocks[:0:0]
	for _, b := range o.Blocks {
		startPi, startOff, startKeep := edit.Remap(b.StartPieceIndex, b.StartOffset)
		endPi, endOff, endKeep := edit.Remap(b.EndPieceIndex, b.EndOffset)
		if !startKeep && !endKeep {
			continue
		}
		if startKeep {
			b.StartPieceIndex, b.StartOffset = startPi, startOff
		}
		if endKeep {
			b.EndPieceIndex, b.EndOffset = endPi, endOff
		}
		blocks = append(blocks, b)
	}
	o.Blocks = blocks
}
