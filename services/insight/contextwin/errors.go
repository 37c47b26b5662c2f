// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextwin

import "errors"

var (
	// ErrSummarizationUnderBudget indicates even the minimal
	// entity-preserving synopsis cannot fit the per-entry cap. The
	// caller must drop the entry whole; truncating mid-entity is
	// never allowed.
	ErrSummarizationUnderBudget = errors.New("summary cannot fit entry budget")

	// ErrInvalidBudget indicates a negative budget or entry cap.
	ErrInvalidBudget = errors.New("invalid context budget")
)
