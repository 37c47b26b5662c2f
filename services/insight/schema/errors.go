// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import "errors"

// ErrSchemaUnavailable indicates the schema provider could not serve
// a metadata snapshot. The validator must reject on this error, never
// proceed unchecked.
var ErrSchemaUnavailable = errors.New("schema metadata unavailable")
