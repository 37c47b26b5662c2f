// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package genquery

import "errors"

var (
	// ErrUpstreamTimeout reports that the language model did not
	// answer within the deadline. This is the only failure class the
	// generator retries.
	ErrUpstreamTimeout = errors.New("genquery: upstream timeout")

	// ErrModelRefusal reports that the model declined to produce a
	// query. Not retried; the question itself is the problem.
	ErrModelRefusal = errors.New("genquery: model refused")

	// ErrNoQueryInResponse reports a response with no recognizable
	// statement. Not retried.
	ErrNoQueryInResponse = errors.New("genquery: no query in response")
)
