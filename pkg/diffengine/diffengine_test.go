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

package diffengine

import (
	"testing"

	"github.com/collabtext/editor-core/pkg/formatting"
)

func TestDiffTextInsertion(t *testing.T) {
	ops := DiffText([]rune("hello world"), []rune("hello there world"))
	if len(ops) != 1 {
		t.Fatalf("expected a single insertion op, got %d: %+v", len(ops), ops)
	}
	if !ops[0].IsInsertion() {
		t.Errorf("expected an insertion op")
	}
	if string(ops[0].Insertion) != "there " {
		t.Errorf("Insertion = %q, want %q", string(ops[0].Insertion), "there ")
	}
}

func TestDiffTextDeletion(t *testing.T) {
	ops := DiffText([]rune("hello there world"), []rune("hello world"))
	if len(ops) != 1 {
		t.Fatalf("expected a single deletion op, got %d: %+v", len(ops), ops)
	}
	if !ops[0].IsDeletion() {
		t.Errorf("expected a deletion op")
	}
	if ops[0].Deletion != 6 {
		t.Errorf("Deletion = %d, want 6", ops[0].Deletion)
	}
}

func TestDiffTextNoChange(t *testing.T) {
	ops := DiffText([]rune("same"), []rune("same"))
	if len(ops) != 0 {
		t.Errorf("expected no ops for identical text, got %d", len(ops))
	}
}

func TestDiffStyles(t *testing.T) {
	before := []formatting.StyleRange{{PieceIndex: 0, OffsetInPiece: 0, Length: 5, Styles: map[string]string{"bold": "true"}}}
	after := []formatting.StyleRange{{PieceIndex: 0, OffsetInPiece: 0, Length: 5, Styles: map[string]string{"italic": "true"}}}
	ops := DiffStyles(before, after)
	if len(ops) != 2 {
		t.Fatalf("expected one add and one remove, got %d", len(ops))
	}
	var sawAdd, sawRemove bool
	for _, op := range ops {
		if op.Add {
			sawAdd = true
		} else {
			sawRemove = true
		}
	}
	if !sawAdd || !sawRemove {
		t.Errorf("expected both an add and a remove op, got %+v", ops)
	}
}
