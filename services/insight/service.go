// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package insight wires the full question-to-answer pipeline: entity
// extraction, context ranking, token-budgeted window assembly,
// reference resolution, query generation, four-stage validation, and
// bounded execution, all under a per-session exclusive lock.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/17user21id/financial-ai-analytics/services/insight/contextwin"
	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
	"github.com/17user21id/financial-ai-analytics/services/insight/execute"
	"github.com/17user21id/financial-ai-analytics/services/insight/extract"
	"github.com/17user21id/financial-ai-analytics/services/insight/genquery"
	"github.com/17user21id/financial-ai-analytics/services/insight/observability"
	"github.com/17user21id/financial-ai-analytics/services/insight/rank"
	"github.com/17user21id/financial-ai-analytics/services/insight/resolve"
	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
	"github.com/17user21id/financial-ai-analytics/services/insight/session"
	"github.com/17user21id/financial-ai-analytics/services/insight/validate"
)

// executeAttempts bounds ledger-side retries. Only upstream timeouts
// are retried.
const executeAttempts = 2

// Deps are the collaborators of one Service. All fields are required
// except Metrics and Logger.
type Deps struct {
	Store     *session.Store
	Locks     *session.LockManager
	Generator *genquery.Generator
	Validator *validate.Validator
	Executor  *execute.Executor
	Schema    schema.Provider
	Metrics   *observability.PipelineMetrics
	Logger    *slog.Logger

	// Weights and Budget are read per request so configuration
	// reloads take effect without a restart.
	Weights func() rank.Weights
	Budget  func() contextwin.BudgetConfig
}

// Service runs the pipeline.
type Service struct {
	deps Deps
}

// NewService validates and captures the dependency set.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("insight: nil store")
	case deps.Locks == nil:
		return nil, fmt.Errorf("insight: nil lock manager")
	case deps.Generator == nil:
		return nil, fmt.Errorf("insight: nil generator")
	case deps.Validator == nil:
		return nil, fmt.Errorf("insight: nil validator")
	case deps.Executor == nil:
		return nil, fmt.Errorf("insight: nil executor")
	case deps.Schema == nil:
		return nil, fmt.Errorf("insight: nil schema provider")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Weights == nil {
		deps.Weights = rank.DefaultWeights
	}
	if deps.Budget == nil {
		deps.Budget = contextwin.DefaultBudgetConfig
	}
	return &Service{deps: deps}, nil
}

// Ask runs one question through the full pipeline. The session lock
// is held for the duration, so concurrent questions against the same
// session serialize.
func (s *Service) Ask(ctx context.Context, requestID string, req AskRequest) (AskResponse, error) {
	resp, err := s.ask(ctx, requestID, req)
	switch {
	case err == nil:
		s.deps.Metrics.RecordRequest("success")
	case errors.Is(err, ErrQueryRejected), errors.Is(err, ErrUnresolvedReference):
		s.deps.Metrics.RecordRequest("rejected")
	default:
		s.deps.Metrics.RecordRequest("error")
	}
	return resp, err
}

func (s *Service) ask(ctx context.Context, requestID string, req AskRequest) (AskResponse, error) {
	release := s.deps.Locks.Lock(req.SessionID)
	defer release()
	s.deps.Metrics.RequestStarted()
	defer s.deps.Metrics.RequestEnded()

	logger := s.deps.Logger.With("request_id", requestID, "session_id", req.SessionID)

	sess, _, err := s.deps.Store.CreateOrGet(ctx, req.SessionID, req.Owner)
	if err != nil {
		return AskResponse{}, err
	}
	if sess.Archived {
		return AskResponse{}, fmt.Errorf("session %s: %w", req.SessionID, session.ErrSessionArchived)
	}
	history, err := s.deps.Store.History(ctx, req.SessionID)
	if err != nil {
		return AskResponse{}, err
	}

	// Extraction and ranking.
	entities := timed(s.deps.Metrics, "extract", func() datatypes.EntitySet {
		return extract.Extract(req.Question, "")
	})
	current := datatypes.Turn{
		SessionID: req.SessionID,
		Role:      datatypes.RoleUser,
		Text:      req.Question,
		Entities:  entities,
	}
	ranked := timed(s.deps.Metrics, "rank", func() []datatypes.ContextEntry {
		return rank.Rank(current, history, s.deps.Weights())
	})

	// Token-budgeted window.
	window := timed(s.deps.Metrics, "window", func() []datatypes.ContextEntry {
		return contextwin.FitWindow(ranked, s.deps.Budget())
	})
	s.deps.Metrics.RecordContextWindow(len(window))

	// Reference resolution. A detected reference that cannot be
	// resolved refuses the request so the model never guesses the
	// missing value; the caller re-prompts with a concrete question.
	intent, err := s.resolveReferences(req.Question, window, logger)
	if err != nil {
		return AskResponse{}, err
	}

	// Query generation.
	meta, err := s.deps.Schema.Schema(ctx)
	if err != nil {
		return AskResponse{}, err
	}
	spec := genquery.NewPromptSpec(meta.Render(), window, intent.Question)
	start := time.Now()
	query, err := s.deps.Generator.GenerateQuery(ctx, spec)
	s.deps.Metrics.RecordStageDuration("generate", time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, genquery.ErrUpstreamTimeout) {
			s.deps.Metrics.RecordRetry("model")
		}
		return AskResponse{}, err
	}
	s.deps.Metrics.RecordTokens(contextwin.EstimateTokens(spec.Render()), contextwin.EstimateTokens(query))

	// Validation. A rejection is terminal and audited.
	start = time.Now()
	verdict := s.deps.Validator.Validate(ctx, query)
	s.deps.Metrics.RecordStageDuration("validate", time.Since(start).Seconds())
	s.deps.Metrics.RecordVerdict(string(verdict.Stage()), verdict.Code())
	if !verdict.Accepted() {
		s.recordRejectedExchange(ctx, req, entities, verdict, logger)
		return AskResponse{}, &RejectionError{Verdict: verdict}
	}

	// Execution, retried only on upstream timeout.
	result, err := s.executeWithRetry(ctx, verdict)
	if err != nil {
		return AskResponse{}, err
	}
	digest := result.Digest()

	// Answer formatting. Failure falls back to the digest.
	answer := s.formatAnswer(ctx, intent.Question, result, digest, logger)

	// Persist the exchange.
	sysTurn, err := s.persistExchange(ctx, req, entities, verdict.Query(), digest, answer)
	if err != nil {
		return AskResponse{}, err
	}

	logger.Info("pipeline complete",
		"seq", sysTurn.Seq,
		"window_entries", len(window),
		"rows", result.RowCount)

	resp := AskResponse{
		RequestID:        requestID,
		SessionID:        req.SessionID,
		Seq:              sysTurn.Seq,
		Answer:           answer,
		Query:            verdict.Query(),
		ResultDigest:     digest,
		ResolvedQuestion: intent.Question,
		Resolutions:      intent.Resolutions,
	}
	for _, entry := range window {
		resp.Window = append(resp.Window, WindowEntry{
			Seq:            entry.Turn.Seq,
			Rank:           entry.Rank,
			Score:          entry.Score,
			Representation: string(entry.Representation),
			TokenCost:      entry.TokenCost,
		})
	}
	return resp, nil
}

func (s *Service) resolveReferences(question string, window []datatypes.ContextEntry, logger *slog.Logger) (resolve.Intent, error) {
	start := time.Now()
	intent, err := resolve.Resolve(question, window)
	s.deps.Metrics.RecordStageDuration("resolve", time.Since(start).Seconds())

	var unresolvedErr *resolve.UnresolvedError
	if errors.As(err, &unresolvedErr) {
		unresolved := make([]string, 0, len(unresolvedErr.Categories))
		for _, cat := range unresolvedErr.Categories {
			unresolved = append(unresolved, string(cat))
			s.deps.Metrics.RecordUnresolved(string(cat))
		}
		logger.Warn("unresolved references, refusing",
			"categories", strings.Join(unresolved, ","))
		return intent, &UnresolvedReferenceError{
			Categories:  unresolved,
			Resolutions: intent.Resolutions,
		}
	}
	return intent, nil
}

func (s *Service) executeWithRetry(ctx context.Context, verdict validate.Verdict) (execute.Result, error) {
	var result execute.Result
	var err error
	for attempt := 1; attempt <= executeAttempts; attempt++ {
		start := time.Now()
		result, err = s.deps.Executor.Execute(ctx, verdict)
		s.deps.Metrics.RecordStageDuration("execute", time.Since(start).Seconds())
		if err == nil || !errors.Is(err, execute.ErrUpstreamTimeout) {
			return result, err
		}
		if attempt < executeAttempts {
			s.deps.Metrics.RecordRetry("ledger")
		}
	}
	return result, err
}

func (s *Service) formatAnswer(ctx context.Context, question string, result execute.Result, digest string, logger *slog.Logger) string {
	start := time.Now()
	answer, err := s.deps.Generator.FormatAnswer(ctx, genquery.FormatSpec{
		Question: question,
		Columns:  result.Columns,
		Rows:     result.Rows,
	})
	s.deps.Metrics.RecordStageDuration("format", time.Since(start).Seconds())
	if err != nil || answer == "" {
		logger.Warn("answer formatting failed, using digest", "error", err)
		return digest
	}
	return answer
}

// persistExchange appends the user and system turns and refreshes the
// session summary. Both turns carry the extracted entities so later
// ranking sees them.
func (s *Service) persistExchange(ctx context.Context, req AskRequest, entities datatypes.EntitySet, query, digest, answer string) (datatypes.Turn, error) {
	_, err := s.deps.Store.AppendTurn(ctx, datatypes.Turn{
		SessionID:  req.SessionID,
		Role:       datatypes.RoleUser,
		Text:       req.Question,
		Entities:   entities,
		TokenCount: contextwin.EstimateTokens(req.Question),
	})
	if err != nil {
		return datatypes.Turn{}, err
	}

	sysEntities := extract.Extract(answer, query)
	sysTurn := datatypes.Turn{
		SessionID:    req.SessionID,
		Role:         datatypes.RoleSystem,
		Text:         answer,
		Entities:     mergeEntities(entities, sysEntities),
		QueryText:    query,
		ResultDigest: digest,
		TokenCount:   contextwin.EstimateTokens(answer),
	}
	if summary, err := contextwin.Summarize(sysTurn, s.deps.Budget().EntryCap); err == nil {
		sysTurn.Summary = summary
	}
	sysTurn, err = s.deps.Store.AppendTurn(ctx, sysTurn)
	if err != nil {
		return datatypes.Turn{}, err
	}

	if err := s.deps.Store.TouchSummary(ctx, req.SessionID, digest); err != nil {
		return datatypes.Turn{}, err
	}
	return sysTurn, nil
}

// recordRejectedExchange persists the rejected question so context
// ranking still sees it, with the rejection note as the system turn.
func (s *Service) recordRejectedExchange(ctx context.Context, req AskRequest, entities datatypes.EntitySet, verdict validate.Verdict, logger *slog.Logger) {
	_, err := s.deps.Store.AppendTurn(ctx, datatypes.Turn{
		SessionID:  req.SessionID,
		Role:       datatypes.RoleUser,
		Text:       req.Question,
		Entities:   entities,
		TokenCount: contextwin.EstimateTokens(req.Question),
	})
	if err != nil {
		logger.Warn("failed to persist rejected exchange", "error", err)
		return
	}
	note := fmt.Sprintf("request rejected (%s): %s", verdict.Code(), verdict.Reason())
	if _, err := s.deps.Store.AppendTurn(ctx, datatypes.Turn{
		SessionID:  req.SessionID,
		Role:       datatypes.RoleSystem,
		Text:       note,
		TokenCount: contextwin.EstimateTokens(note),
	}); err != nil {
		logger.Warn("failed to persist rejection note", "error", err)
	}
}

// timed is a free function because methods cannot be generic.
func timed[T any](m *observability.PipelineMetrics, stage string, fn func() T) T {
	start := time.Now()
	out := fn()
	m.RecordStageDuration(stage, time.Since(start).Seconds())
	return out
}

func mergeEntities(a, b datatypes.EntitySet) datatypes.EntitySet {
	if len(a) == 0 {
		return b
	}
	merged := datatypes.EntitySet{}
	for cat, vals := range a {
		merged[cat] = append(merged[cat], vals...)
	}
	for cat, vals := range b {
	outer:
		for _, v := range vals {
			for _, existing := range merged[cat] {
				if existing.Value == v.Value {
					continue outer
				}
			}
			merged[cat] = append(merged[cat], v)
		}
	}
	return merged
}

// Session returns one session's external view.
func (s *Service) Session(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	return sessionView(sess), nil
}

// Sessions lists all sessions.
func (s *Service) Sessions(ctx context.Context) ([]SessionView, error) {
	all, err := s.deps.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(all))
	for _, sess := range all {
		views = append(views, sessionView(sess))
	}
	return views, nil
}

// History returns one session's turns in seq order.
func (s *Service) History(ctx context.Context, id string) ([]TurnView, error) {
	turns, err := s.deps.Store.History(ctx, id)
	if err != nil {
		return nil, err
	}
	views := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		views = append(views, turnView(t))
	}
	return views, nil
}

// Archive marks a session archived; later appends fail.
func (s *Service) Archive(ctx context.Context, id string) error {
	release := s.deps.Locks.Lock(id)
	defer release()
	return s.deps.Store.Archive(ctx, id)
}
