// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execute

import "errors"

var (
	// ErrVerdictRejected reports an attempt to execute a query whose
	// verdict is not accepted. This path indicates a programming
	// error upstream, never user input.
	ErrVerdictRejected = errors.New("execute: verdict not accepted")

	// ErrUpstreamTimeout reports that the ledger store did not answer
	// within the execution deadline. This is the only failure class
	// the pipeline retries.
	ErrUpstreamTimeout = errors.New("execute: upstream timeout")

	// ErrQueryFailed reports a non-timeout execution failure.
	ErrQueryFailed = errors.New("execute: query failed")
)
