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

// Package mergeengine implements the three-way merge (operational
// transform) that reconciles a change submitted against a stale base
// version with every change the document has accepted since that base.
//
// Both diffs passed to Merge are expressed relative to the same ancestor
// snapshot. The result is the diff an incoming change turns into once it is
// transformed against what already landed, suitable for appending directly
// onto the current snapshot.
package mergeengine

import (
	"github.com/collabtext/editor-core/pkg/diffengine"
)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func textSpan(c diffengine.TextComponent) (start, end int) {
	if c.IsInsertion() {
		return c.Position, c.Position + len(c.Insertion)
	}
	return c.Position, c.Position + c.Deletion
}

func textOverlaps(a, b diffengine.TextComponent) bool {
	aStart, aEnd := textSpan(a)
	bStart, bEnd := textSpan(b)
	return !(aEnd <= bStart || bEnd <= aStart)
}

func netLength(c diffengine.TextComponent) int {
	if c.IsInsertion() {
		return len(c.Insertion)
	}
	return -c.Deletion
}

// mergeText transforms each incoming text component against the landed
// ones: components whose spans don't overlap any landed component are
// shifted by the net length of every landed component positioned at or
// before them (the same arithmetic as an OT position transform);
// components that do overlap a landed component are kept as-is and allowed
// to win outright (last-writer-wins for the contested span).
func mergeText(landed, incoming []diffengine.TextComponent) []diffengine.TextComponent {
	out := make([]diffengine.TextComponent, 0, len(incoming))
	for _, in := range incoming {
		shift := 0
		overlapped := false
		for _, cur := range landed {
			if textOverlaps(cur, in) {
				overlapped = true
				continue
			}
			curStart, _ := textSpan(cur)
			if curStart <= in.Position {
				shift += netLength(cur)
			}
		}
		if overlapped {
			out = append(out, in)
			continue
		}
		in.Position += shift
		out = append(out, in)
	}
	return out
}

func stylesOverlap(a, b diffengine.StyleOp) bool {
	if a.Range.PieceIndex != b.Range.PieceIndex {
		return false
	}
	aEnd := a.Range.OffsetInPiece + a.Range.Length
	bEnd := b.Range.OffsetInPiece + b.Range.Length
	return !(aEnd <= b.Range.OffsetInPiece || bEnd <= a.Range.OffsetInPiece)
}

func sharesAttributeKey(a, b diffengine.StyleOp) bool {
	for k := range a.Range.Styles {
		if _, ok := b.Range.Styles[k]; ok {
			return true
		}
	}
	return false
}

// mergeStyles resolves style-range conflicts: two Add ops over overlapping
// ranges that share at least one attribute key merge their attribute maps
// with the incoming side taking precedence on conflicting keys; every other
// shape of overlap (or no overlap at all) keeps both ops.
func mergeStyles(landed, incoming []diffengine.StyleOp) []diffengine.StyleOp {
	out := make([]diffengine.StyleOp, 0, len(landed)+len(incoming))
	out = append(out, landed...)
	for _, in := range incoming {
		merged := false
		for i, cur := range out {
			if !cur.Add || !in.Add || !stylesOverlap(cur, in) || !sharesAttributeKey(cur, in) {
				continue
			}
			combined := make(map[string]string, len(cur.Range.Styles)+len(in.Range.Styles))
			for k, v := range cur.Range.Styles {
				combined[k] = v
			}
			for k, v := range in.Range.Styles {
				combined[k] = v
			}
			out[i].Range.Styles = combined
			merged = true
			break
		}
		if !merged {
			out = append(out, in)
		}
	}
	return out
}

// mergeLines and mergeBlocks have no attribute-union case in the source
// model: an incoming line/block op at the same anchor simply wins, matching
// a line marker's "replace the marker at this position" semantics and a
// block's "same-type overlap removes the old block" semantics.
func mergeLines(landed, incoming []diffengine.LineOp) []diffengine.LineOp {
	out := append([]diffengine.LineOp(nil), landed...)
	return append(out, incoming...)
}

func mergeBlocks(landed, incoming []diffengine.BlockOp) []diffengine.BlockOp {
	out := append([]diffengine.BlockOp(nil), landed...)
	return append(out, incoming...)
}

// Merge transforms incoming against landed, both expressed as diffs from
// the same ancestor snapshot, and returns the diff to apply on top of the
// snapshot landed already produced.
func (e *Engine) Merge(landed, incoming diffengine.Diff) diffengine.Diff {
	return diffengine.Diff{
		Text:   mergeText(landed.Text, incoming.Text),
		Styles: mergeStyles(landed.Styles, incoming.Styles),
		Lines:  mergeLines(landed.Lines, incoming.Lines),
		Blocks: mergeBlocks(landed.Blocks, incoming.Blocks),
	}
}
