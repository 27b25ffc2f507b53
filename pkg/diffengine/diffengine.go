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

// Package diffengine computes the minimal edit script between two document
// snapshots: a text diff over their flattened content plus an exact
// positional-match diff of their style/line/block overlays.
package diffengine

import (
	"maps"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/collabtext/editor-core/pkg/docsnapshot"
	"github.com/collabtext/editor-core/pkg/formatting"
)

var dmp = newDMP()

func newDMP() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 100 * time.Millisecond
	return d
}

// TextComponent is a single insertion or deletion. Its Position is in the
// document as already mutated by the components before it in the same
// script: a deletion leaves the positions of later components unchanged, an
// insertion moves them right by its length.
type TextComponent struct {
	Position  int
	Insertion []rune
	Deletion  int
}

func (c TextComponent) IsInsertion() bool {
	return len(c.Insertion) > 0
}

func (c TextComponent) IsDeletion() bool {
	return c.Deletion > 0
}

// DiffText returns the minimal ordered edit script turning before into
// after. Semantic cleanup is intentionally skipped: merge/reconstruction
// only need the raw minimal edit script, not a human-readable grouping of
// it.
func DiffText(before, after []rune) []TextComponent {
	diffs := dmp.DiffMainRunes(before, after, false)

	var ops []TextComponent
	pos := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
		case diffmatchpatch.DiffDelete:
			ops = append(ops, TextComponent{Position: pos, Deletion: n})
		case diffmatchpatch.DiffInsert:
			ops = append(ops, TextComponent{Position: pos, Insertion: []rune(d.Text)})
			pos += n
		}
	}
	return optimizeTextOps(ops)
}

// optimizeTextOps merges adjacent components of the same kind at
// contiguous positions, so a run of single-rune edits collapses into one
// op instead of many.
func optimizeTextOps(ops []TextComponent) []TextComponent {
	if len(ops) < 2 {
		return ops
	}
	out := make([]TextComponent, 0, len(ops))
	curr := ops[0]
	for _, next := range ops[1:] {
		switch {
		case curr.IsInsertion() && next.IsInsertion() && curr.Position+len(curr.Insertion) == next.Position:
			curr.Insertion = append(curr.Insertion, next.Insertion...)
		case curr.IsDeletion() && next.IsDeletion() && curr.Position == next.Position:
			curr.Deletion += next.Deletion
		default:
			out = append(out, curr)
			curr = next
		}
	}
	return append(out, curr)
}

type StyleOp struct {
	Add   bool
	Range formatting.StyleRange
}

type LineOp struct {
	Add    bool
	Marker formatting.LineMarker
}

type BlockOp struct {
	Add   bool
	Block formatting.BlockDescriptor
}

type styleKey struct {
	pieceIndex, offset, length int
}

// DiffStyles compares two style-range lists by exact (pieceIndex,
// offsetInPiece, length) match: a range present in after but not before is
// an Add, a range present in before but not after is a Remove, and a range
// present in both with different attributes is a Remove of the old range
// followed by an Add of the new one. Removes are listed before Adds.
func DiffStyles(before, after []formatting.StyleRange) []StyleOp {
	key := func(s formatting.StyleRange) styleKey {
		return styleKey{s.PieceIndex, s.OffsetInPiece, s.Length}
	}
	beforeByKey := make(map[styleKey]formatting.StyleRange, len(before))
	for _, s := range before {
		beforeByKey[key(s)] = s
	}
	afterByKey := make(map[styleKey]formatting.StyleRange, len(after))
	for _, s := range after {
		afterByKey[key(s)] = s
	}

	var ops []StyleOp
	for _, s := range before {
		if a, ok := afterByKey[key(s)]; !ok || !maps.Equal(a.Styles, s.Styles) {
			ops = append(ops, StyleOp{Add: false, Range: s})
		}
	}
	for _, s := range after {
		if b, ok := beforeByKey[key(s)]; !ok || !maps.Equal(b.Styles, s.Styles) {
			ops = append(ops, StyleOp{Add: true, Range: s})
		}
	}
	return ops
}

type lineKey struct {
	pieceIndex, offset int
}

func DiffLines(before, after []formatting.LineMarker) []LineOp {
	key := func(l formatting.LineMarker) lineKey {
		return lineKey{l.PieceIndex, l.OffsetInPiece}
	}
	beforeByKey := make(map[lineKey]formatting.LineMarker, len(before))
	for _, l := range before {
		beforeByKey[key(l)] = l
	}
	afterByKey := make(map[lineKey]formatting.LineMarker, len(after))
	for _, l := range after {
		afterByKey[key(l)] = l
	}

	var ops []LineOp
	for _, l := range after {
		if _, ok := beforeByKey[key(l)]; !ok {
			ops = append(ops, LineOp{Add: true, Marker: l})
		}
	}
	for _, l := range before {
		if _, ok := afterByKey[key(l)]; !ok {
			ops = append(ops, LineOp{Add: false, Marker: l})
		}
	}
	return ops
}

type blockKey struct {
	startPieceIndex, startOffset, endPieceIndex, endOffset int
	blockType                                              string
}

func DiffBlocks(before, after []formatting.BlockDescriptor) []BlockOp {
	key := func(b formatting.BlockDescriptor) blockKey {
		return blockKey{b.StartPieceIndex, b.StartOffset, b.EndPieceIndex, b.EndOffset, b.Type}
	}
	beforeByKey := make(map[blockKey]formatting.BlockDescriptor, len(before))
	for _, b := range before {
		beforeByKey[key(b)] = b
	}
	afterByKey := make(map[blockKey]formatting.BlockDescriptor, len(after))
	for _, b := range after {
		afterByKey[key(b)] = b
	}

	var ops []BlockOp
	for _, b := range after {
		if _, ok := beforeByKey[key(b)]; !ok {
			ops = append(ops, BlockOp{Add: true, Block: b})
		}
	}
	for _, b := range before {
		if _, ok := afterByKey[key(b)]; !ok {
			ops = append(ops, BlockOp{Add: false, Block: b})
		}
	}
	return ops
}

// Diff is the full edit script between two snapshots.
type Diff struct {
	Text   []TextComponent
	Styles []StyleOp
	Lines  []LineOp
	Blocks []BlockOp
}

func Compute(before, after *docsnapshot.Snapshot) Diff {
	return Diff{
		Text:   DiffText(before.Table.Text(), after.Table.Text()),
		Styles: DiffStyles(before.Overlay.Styles, after.Overlay.Styles),
		Lines:  DiffLines(before.Overlay.Lines, after.Overlay.Lines),
		Blocks: DiffBlocks(before.Overlay.Blocks, after.Overlay.Blocks),
	}
}

// Apply replays d onto s in order: text components first (left to right, so
// each component's Position is valid against the document as mutated by the
// components before it), then overlay ops.
func Apply(s *docsnapshot.Snapshot, d Diff) error {
	for _, c := range d.Text {
		if c.IsDeletion() {
			if err := s.DeleteText(c.Position, c.Deletion); err != nil {
				return err
			}
			continue
		}
		if c.IsInsertion() {
			if err := s.InsertText(c.Position, c.Insertion); err != nil {
				return err
			}
		}
	}
	for _, op := range d.Styles {
		if op.Add {
			s.Overlay.AddStyle(op.Range)
		} else {
			s.Overlay.RemoveStyle(op.Range)
		}
	}
	for _, op := range d.Lines {
		if op.Add {
			s.Overlay.AddLineMarker(op.Marker)
		} else {
			s.Overlay.RemoveLineMarker(op.Marker)
		}
	}
	for _, op := range d.Blocks {
		if op.Add {
			s.Overlay.AddBlock(op.Block)
		} else {
			s.Overlay.RemoveBlock(op.Block)
		}
	}
	return nil
}
