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

import (
	"fmt"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// defaultInstruction frames the generation task. The mutation rules
// are restated here even though the validator enforces them; a model
// that never proposes a write wastes fewer round trips.
const defaultInstruction = `You translate financial questions into a single SQLite SELECT statement.
Rules:
- Output exactly one SELECT or WITH statement, nothing else.
- Use only the tables and columns listed in the schema.
- Never write INSERT, UPDATE, DELETE, or any DDL.
- Prefer aggregate queries over raw row dumps.`

// PromptSpec is the typed form of one generation prompt. Sections
// stay structured until Render so tests can assert on them without
// string parsing.
type PromptSpec struct {
	Instruction string
	Schema      string
	Context     []datatypes.ContextEntry
	Question    string
}

// NewPromptSpec assembles a spec with the standard instruction.
func NewPromptSpec(schemaText string, window []datatypes.ContextEntry, question string) PromptSpec {
	return PromptSpec{
		Instruction: defaultInstruction,
		Schema:      schemaText,
		Context:     window,
		Question:    question,
	}
}

// Render serializes the spec into the model prompt. Context entries
// render most relevant first, tagged with their rank so the model can
// weigh them.
func (p PromptSpec) Render() string {
	var b strings.Builder

	b.WriteString(p.Instruction)
	b.WriteString("\n\n## Schema\n")
	b.WriteString(p.Schema)

	if len(p.Context) > 0 {
		b.WriteString("\n## Conversation context\n")
		for _, entry := range p.Context {
			fmt.Fprintf(&b, "[%d] %s\n", entry.Rank, entry.Text)
		}
	}

	b.WriteString("\n## Question\n")
	b.WriteString(p.Question)
	b.WriteString("\n\nSQL:")
	return b.String()
}

// formatInstruction frames the answer-formatting call, the second of
// the two model round trips.
const formatInstruction = `You summarize a financial query result for the person who asked.
Answer in one or two plain sentences. State amounts with their currency.
Do not mention SQL or the database.`

// FormatSpec is the typed form of one answer-formatting prompt.
type FormatSpec struct {
	Question string
	Columns  []string
	Rows     [][]any
}

// Render serializes the result as a compact table for the model.
func (f FormatSpec) Render() string {
	var b strings.Builder
	b.WriteString(formatInstruction)
	b.WriteString("\n\n## Question\n")
	b.WriteString(f.Question)
	b.WriteString("\n\n## Result\n")
	b.WriteString(strings.Join(f.Columns, " | "))
	b.WriteString("\n")
	for _, row := range f.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer:")
	return b.String()
}
