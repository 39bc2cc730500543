// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern_engine

import "errors"

var (
	// ErrUnknownExtension is returned when a file's extension maps to no
	// known language.
	ErrUnknownExtension = errors.New("no language for file extension")

	// ErrNoFiles is returned when a batch operation receives no paths.
	ErrNoFiles = errors.New("no files given")

	// ErrSyncNotConfigured is returned when remote repository sync is
	// requested but no transport is configured.
	ErrSyncNotConfigured = errors.New("remote sync transport not configured")
)
