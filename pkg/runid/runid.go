// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runid generates identifiers for a single flowguard analysis
// run, used as the run_id attribute on log lines and trace spans. JSON
// findings do not carry it.
package runid

import "github.com/google/uuid"

// New returns a fresh run ID (a v4 UUID string).
func New() string {
	return uuid.NewString()
}
