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

import (
	"errors"

	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
)

// Stage identifies one state of the validation state machine, in
// strict forward order. There are no backward transitions; the first
// rejection is terminal for the request.
type Stage string

const (
	StageSyntaxCheck           Stage = "syntax_check"
	StageParameterSanitization Stage = "parameter_sanitization"
	StageSchemaEnforcement     Stage = "schema_enforcement"
	StageMutationGuard         Stage = "mutation_guard"
)

// Verdict is the outcome of validating one candidate query. Fields
// are unexported: only this package can mint an accepted Verdict, so
// the executor's accepted-Verdict parameter cannot be forged by other
// code paths.
type Verdict struct {
	accepted       bool
	rewriteApplied bool
	query          string
	stage          Stage
	reason         string
	err            error
}

// Accepted reports whether the candidate passed all four stages.
func (v Verdict) Accepted() bool { return v.accepted }

// RewriteApplied reports whether the accepted query differs from the
// candidate (currently only LIMIT normalization).
func (v Verdict) RewriteApplied() bool { return v.rewriteApplied }

// Query returns the validated (possibly rewritten) query text. Empty
// unless the verdict is accepted.
func (v Verdict) Query() string {
	if !v.accepted {
		return ""
	}
	return v.query
}

// Stage returns the stage that produced the verdict: the rejecting
// stage, or StageMutationGuard for an accepted verdict.
func (v Verdict) Stage() Stage { return v.stage }

// Reason returns the human-readable rejection reason.
func (v Verdict) Reason() string { return v.reason }

// Err returns the sentinel classifying the rejection, nil when
// accepted. Callers match it with errors.Is.
func (v Verdict) Err() error { return v.err }

// Code returns the machine-readable reason code for audit logs and
// API responses.
func (v Verdict) Code() string {
	switch {
	case v.err == nil:
		return "ACCEPTED"
	case errors.Is(v.err, ErrStructuralViolation):
		return "STRUCTURAL_VIOLATION"
	case errors.Is(v.err, ErrParameterViolation):
		return "PARAMETER_VIOLATION"
	case errors.Is(v.err, ErrInjectionSuspected):
		return "INJECTION_SUSPECTED"
	case errors.Is(v.err, ErrSchemaViolation):
		return "SCHEMA_VIOLATION"
	case errors.Is(v.err, ErrWriteAttemptBlocked):
		return "WRITE_ATTEMPT_BLOCKED"
	case errors.Is(v.err, schema.ErrSchemaUnavailable):
		return "SCHEMA_UNAVAILABLE"
	default:
		return "REJECTED"
	}
}

func accepted(query string, rewriteApplied bool) Verdict {
	return Verdict{
		accepted:       true,
		rewriteApplied: rewriteApplied,
		query:          query,
		stage:          StageMutationGuard,
	}
}

func rejected(stage Stage, err error, reason string) Verdict {
	return Verdict{
		stage:  stage,
		reason: reason,
		err:    err,
	}
}
