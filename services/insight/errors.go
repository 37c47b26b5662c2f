// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package insight

import (
	"errors"
	"fmt"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/resolve"
	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
)

// ErrQueryRejected marks a pipeline run that ended in a validation
// rejection. Wrap-checked by handlers via errors.Is.
var ErrQueryRejected = errors.New("insight: query rejected")

// RejectionError carries the full verdict of a rejected query so the
// handler can surface stage and reason code.
type RejectionError struct {
	Verdict validate.Verdict
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("query rejected at %s: %s", e.Verdict.Stage(), e.Verdict.Reason())
}

func (e *RejectionError) Unwrap() error { return ErrQueryRejected }

// ErrUnresolvedReference marks a request refused because a detected
// reference could not be resolved from context. Wrap-checked by
// handlers via errors.Is.
var ErrUnresolvedReference = errors.New("insight: unresolved reference")

// UnresolvedReferenceError lists the reference categories that could
// not be resolved, plus the substitutions that did succeed so the
// caller can re-prompt with them intact.
type UnresolvedReferenceError struct {
	Categories  []string
	Resolutions []resolve.Resolution
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("cannot resolve %s reference from conversation context",
		strings.Join(e.Categories, ", "))
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }
