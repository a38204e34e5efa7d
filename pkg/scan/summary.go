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

package scan

import (
	"time"

	"github.com/carverauto/portprobe/pkg/models"
)

// Summary tallies records as the presentation layer consumes them.
type Summary struct {
	ScanID   string
	Host     string
	Address  string
	Ports    int
	Open     int
	Closed   int
	TimedOut int
	Elapsed  time.Duration
}

func NewSummary(s *Session) *Summary {
	return &Summary{
		ScanID:  s.ID,
		Host:    s.Host,
		Address: s.Address,
	}
}

func (s *Summary) Add(rec *models.PortRecord) {
	s.Ports++

	switch rec.Status {
	case models.StatusOpen:
		s.Open++
	case models.StatusClosed:
		s.Closed++
	case models.StatusTimedOut:
		s.TimedOut++
	}
}

// Collect drains records into a slice and a summary.
func Collect(s *Session) ([]models.PortRecord, *Summary) {
	start := time.Now()
	summary := NewSummary(s)

	var out []models.PortRecord

	for rec := range s.Records {
		summary.Add(&rec)
		out = append(out, rec)
	}

	summary.Elapsed = time.Since(start)

	return out, summary
}
