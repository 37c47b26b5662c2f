// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

// ErrUnresolvedReference indicates a detected reference no ranked
// entry could supply a value for. The caller must ask the user to
// disambiguate rather than guess.
var ErrUnresolvedReference = errors.New("unresolved reference")

// UnresolvedError lists the reference categories that failed to
// resolve. Categories resolve independently, so a partially resolved
// intent accompanies this error.
type UnresolvedError struct {
	Categories []datatypes.Category
}

func (e *UnresolvedError) Error() string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = string(c)
	}
	return fmt.Sprintf("unresolved reference categories: %s", strings.Join(names, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedReference }
