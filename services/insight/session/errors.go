// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "errors"

var (
	// ErrSessionNotFound indicates the session id has never been seen.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionArchived indicates an append was attempted on an
	// archived session. Archived sessions are read-only.
	ErrSessionArchived = errors.New("session is archived")

	// ErrInvalidTurn indicates a turn with missing required fields.
	ErrInvalidTurn = errors.New("invalid turn")
)
