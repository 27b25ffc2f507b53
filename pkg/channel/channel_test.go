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

package channel

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrips(t *testing.T) {
	want := Operation{SourceVersion: 10, Type: "insert", Position: 3, Content: "hi"}

	m, err := Encode(TypeOperation, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if m.Type != TypeOperation {
		t.Fatalf("m.Type = %s, want %s", m.Type, TypeOperation)
	}

	var got Operation
	if err = Decode(m, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode round-trip = %+v, want %+v", got, want)
	}
}

func TestDecodeEmptyBodyIsValidationError(t *testing.T) {
	var op Operation
	if err := Decode(Message{Type: TypeOperation}, &op); err == nil {
		t.Fatal("expected error decoding a message with no body")
	}
}

func TestValidateRejectsMissingType(t *testing.T) {
	if err := (Message{}).Validate(); err == nil {
		t.Fatal("expected error validating a message with no type")
	}
	if err := (Message{Type: TypeSyncRequest}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
