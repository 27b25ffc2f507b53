// Golang port of Overleaf
// Copyright (C) 2021-2023 Jakob Ackermann <das7pad@outlook.com>
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

package sharedTypes

import (
	"strconv"

	"github.com/collabtext/editor-core/pkg/errors"
)

// Version is a document version number, stored as a scaled integer of
// tenths to avoid the float accumulation drift of repeated "+= 0.1" bumps.
// String renders a Version of 37 as "3.7"; its JSON encoding, and the
// version fields of channel messages, carry the integer 37.
type Version int64

// Next returns the version one history entry ahead of v: a 0.1 step, which
// at this tenths scaling is +1.
func (v Version) Next() Version {
	return v + 1
}

func (v Version) Equals(other Version) bool {
	return v == other
}

func (v Version) Before(other Version) bool {
	return v < other
}

func (v Version) Float64() float64 {
	return float64(v) / 10
}

func (v Version) String() string {
	whole := int64(v) / 10
	frac := int64(v) % 10
	if frac < 0 {
		frac = -frac
	}
	return strconv.FormatInt(whole, 10) + "." + strconv.FormatInt(frac, 10)
}

func (v *Version) ParseIfSet(s string) error {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &errors.ValidationError{Msg: "invalid version"}
	}
	*v = Version(f * 10)
	return nil
}
