/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package limits keeps the probe worker budget within the process's
// open-file limit.
package limits

import "github.com/carverauto/portprobe/pkg/logger"

// reservedDescriptors is left for stdio, log exporters and inspection pipes.
const reservedDescriptors = 64

// clampWorkers fits workers under a descriptor limit of maxFiles.
func clampWorkers(workers int, maxFiles uint64) int {
	if maxFiles == 0 {
		return workers
	}

	budget := int64(maxFiles) - reservedDescriptors //nolint:gosec // limits fit comfortably in int64
	if budget < 1 {
		budget = 1
	}

	if int64(workers) > budget {
		return int(budget)
	}

	return workers
}

// CheckWorkers returns workers, lowered if the soft RLIMIT_NOFILE cannot
// hold one socket per worker.
func CheckWorkers(workers int, log logger.Logger) int {
	maxFiles, err := openFileLimit()
	if err != nil {
		log.Debug().Err(err).Msg("Could not read open file limit")

		return workers
	}

	clamped := clampWorkers(workers, maxFiles)
	if clamped != workers {
		log.Warn().
			Int("requested", workers).
			Int("workers", clamped).
			Uint64("nofile", maxFiles).
			Msg("Lowering worker count to fit the open file limit")
	}

	return clamped
}
