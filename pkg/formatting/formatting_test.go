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

package formatting

import (
	"testing"

	"github.com/collabtext/editor-core/pkg/piecetable"
)

func TestAddStyleRemovesOverlappingSameKey(t *testing.T) {
	o := New()
	o.AddStyle(StyleRange{PieceIndex: 0, OffsetInPiece: 0, Length: 5, Styles: map[string]string{"bold": "true"}})
	o.AddStyle(StyleRange{PieceIndex: 0, OffsetInPiece: 2, Length: 3, Styles: map[string]string{"bold": "false"}})
	if len(o.Styles) != 1 {
		t.Fatalf("expected overlapping same-key style to be replaced, got %d styles", len(o.Styles))
	}
	if o.Styles[0].OffsetInPiece != 2 {
		t.Errorf("expected the newest style to survive, got offset %d", o.Styles[0].OffsetInPiece)
	}
}

func TestAddStyleKeepsDisjointKeys(t *testing.T) {
	o := New()
	o.AddStyle(StyleRange{PieceIndex: 0, OffsetInPiece: 0, Length: 5, Styles: map[string]string{"bold": "true"}})
	o.AddStyle(StyleRange{PieceIndex: 0, OffsetInPiece: 2, Length: 3, Styles: map[string]string{"italic": "true"}})
	if len(o.Styles) != 2 {
		t.Fatalf("expected both styles to survive (disjoint keys), got %d", len(o.Styles))
	}
}

func TestBlockAtContainsPosition(t *testing.T) {
	o := New()
	o.AddBlock(BlockDescriptor{StartPieceIndex: 0, StartOffset: 2, EndPieceIndex: 1, EndOffset: 3, Type: "quote"})
	if _, ok := o.BlockAt(0, 1); ok {
		t.Errorf("expected position before block start to miss")
	}
	if _, ok := o.BlockAt(1, 2); !ok {
		t.Errorf("expected position inside block to hit")
	}
}

func TestRebaseAfterInsertSplit(t *testing.T) {
	tbl := piecetable.New([]rune("hello world"))
	o := New()
	o.AddStyle(StyleRange{PieceIndex: 0, OffsetInPiece: 6, Length: 5, Styles: map[string]string{"bold": "true"}})

	edit, err := tbl.Insert(5, []rune(","))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	o.Rebase(edit)

	if len(o.Styles) != 1 {
		t.Fatalf("expected style to survive rebase, got %d", len(o.Styles))
	}
	s := o.Styles[0]
	if s.PieceIndex != 2 || s.OffsetInPiece != 1 {
		t.Errorf("rebase = (piece %d, offset %d), want (2, 1)", s.PieceIndex, s.OffsetInPiece)
	}
}

func TestRebaseDropsAnchorInDeletedRange(t *testing.T) {
	tbl := piecetable.New([]rune("hello world"))
	o := New()
	o.AddLineMarker(LineMarker{PieceIndex: 0, OffsetInPiece: 0, Type: "paragraph"})

	edit, err := tbl.Delete(0, 11)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	o.Rebase(edit)

	if len(o.Lines) != 0 {
		t.Errorf("expected line marker anchored in fully-deleted piece to be dropped, got %d", len(o.Lines))
	}
}
