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
	"time"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
	"github.com/17user21id/financial-ai-analytics/services/insight/resolve"
)

// AskRequest is one natural-language question against the ledger.
type AskRequest struct {
	// SessionID groups turns into one conversation. Created on first
	// use.
	SessionID string `json:"session_id" binding:"required,max=128,sessionid"`

	// Owner identifies the requesting principal.
	Owner string `json:"owner" binding:"omitempty,max=128"`

	// Question is the natural-language query.
	Question string `json:"question" binding:"required,min=1,max=2000"`
}

// WindowEntry mirrors one fitted context entry for the response's
// audit section.
type WindowEntry struct {
	Seq            int     `json:"seq"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	Representation string  `json:"representation"`
	TokenCost      int     `json:"token_cost"`
}

// AskResponse is the successful outcome of one pipeline run.
type AskResponse struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`

	// Answer is the model-formatted prose, falling back to the
	// result digest when formatting fails.
	Answer string `json:"answer"`

	// Query is the validated statement that actually ran.
	Query string `json:"query"`

	// ResultDigest is the short result summary stored with the turn.
	ResultDigest string `json:"result_digest"`

	// ResolvedQuestion is the question after reference substitution.
	ResolvedQuestion string `json:"resolved_question"`

	Resolutions []resolve.Resolution `json:"resolutions,omitempty"`

	Window []WindowEntry `json:"window,omitempty"`
}

// ErrorResponse is the uniform failure envelope. Code is one of the
// stable reason codes; Stage is set for validation rejections.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error"`

	// Unresolved and Resolutions are set for UNRESOLVED_REFERENCE
	// refusals: the failed categories plus the substitutions that did
	// succeed, so the caller can re-prompt with them intact.
	Unresolved  []string             `json:"unresolved,omitempty"`
	Resolutions []resolve.Resolution `json:"resolutions,omitempty"`
}

// SessionView is the external shape of one session.
type SessionView struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Summary        string    `json:"summary,omitempty"`
	Archived       bool      `json:"archived"`
}

func sessionView(s datatypes.Session) SessionView {
	return SessionView{
		ID:             s.ID,
		Owner:          s.Owner,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		Summary:        s.Summary,
		Archived:       s.Archived,
	}
}

// TurnView is the external shape of one stored turn.
type TurnView struct {
	Seq          int       `json:"seq"`
	Role         string    `json:"role"`
	Text         string    `json:"text"`
	QueryText    string    `json:"query_text,omitempty"`
	ResultDigest string    `json:"result_digest,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func turnView(t datatypes.Turn) TurnView {
	return TurnView{
		Seq:          t.Seq,
		Role:         string(t.Role),
		Text:         t.Text,
		QueryText:    t.QueryText,
		ResultDigest: t.ResultDigest,
		CreatedAt:    t.CreatedAt,
	}
}
