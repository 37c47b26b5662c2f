// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import "errors"

var (
	// ErrStructuralViolation indicates the candidate is not a single
	// read-only statement.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrParameterViolation indicates a literal failed its type or
	// range check against the target column.
	ErrParameterViolation = errors.New("parameter violation")

	// ErrInjectionSuspected indicates a string literal matched the
	// injection-pattern denylist.
	ErrInjectionSuspected = errors.New("injection suspected")

	// ErrSchemaViolation indicates a reference to a table or column
	// absent from the live schema, or a join outside the declared
	// foreign keys.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrWriteAttemptBlocked indicates a construct capable of
	// modifying state. Redundant with the syntax stage by design.
	ErrWriteAttemptBlocked = errors.New("write attempt blocked")
)
