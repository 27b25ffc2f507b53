// Golang port of Overleaf
// Copyright (C) 2021 Jakob Ackermann <das7pad@outlook.com>
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

package errors

// VersionConflictError is returned when an operation is submitted against a
// base version the document's log no longer has a diff path from.
type VersionConflictError struct {
	Msg string
}

func (e *VersionConflictError) IsFatal() bool {
	return false
}

func (e *VersionConflictError) Error() string {
	return "version conflict: " + e.Msg
}

func (e *VersionConflictError) Public() *JavaScriptError {
	return &JavaScriptError{Message: e.Error()}
}

func IsVersionConflict(err error) bool {
	err = GetCause(err)
	if err == nil {
		return false
	}
	_, ok := err.(*VersionConflictError)
	return ok
}

// StorageUnavailableError wraps a Store-layer failure that callers should
// treat as retryable rather than fatal to the in-memory session state.
type StorageUnavailableError struct {
	Msg string
}

func (e *StorageUnavailableError) Error() string {
	return "storage unavailable: " + e.Msg
}

func (e *StorageUnavailableError) Public() *JavaScriptError {
	return &JavaScriptError{Message: "temporarily unavailable"}
}

func IsStorageUnavailable(err error) bool {
	err = GetCause(err)
	if err == nil {
		return false
	}
	_, ok := err.(*StorageUnavailableError)
	return ok
}
