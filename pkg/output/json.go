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

package output

import (
	"encoding/json"
	"io"

	"github.com/carverauto/portprobe/pkg/models"
	"github.com/carverauto/portprobe/pkg/scan"
)

// jsonRenderer emits newline-delimited JSON objects: one "scan" line, one
// "port" line per record and a closing "summary" line.
type jsonRenderer struct {
	enc *json.Encoder
}

func newJSONRenderer(w io.Writer) *jsonRenderer {
	return &jsonRenderer{enc: json.NewEncoder(w)}
}

type jsonHeader struct {
	Type      string `json:"type"`
	ScanID    string `json:"scan_id,omitempty"`
	Host      string `json:"host"`
	Address   string `json:"address,omitempty"`
	Workers   int    `json:"workers"`
	TimeoutMS int64  `json:"timeout_ms"`
	Retries   int    `json:"retries"`
}

type jsonInspection struct {
	models.InspectionResult
	Error string `json:"error,omitempty"`
}

type jsonRecord struct {
	Type       string          `json:"type"`
	Port       models.Port     `json:"port"`
	Status     models.Status   `json:"status"`
	Attempts   int             `json:"attempts"`
	RTTMS      float64         `json:"rtt_ms"`
	Error      string          `json:"error,omitempty"`
	Inspection *jsonInspection `json:"inspection,omitempty"`
}

type jsonSummary struct {
	Type      string  `json:"type"`
	ScanID    string  `json:"scan_id,omitempty"`
	Ports     int     `json:"ports"`
	Open      int     `json:"open"`
	Closed    int     `json:"closed"`
	TimedOut  int     `json:"timed_out"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

func (j *jsonRenderer) Header(h *Header) error {
	return j.enc.Encode(jsonHeader{
		Type:      "scan",
		ScanID:    h.ScanID,
		Host:      h.Host,
		Address:   h.Address,
		Workers:   h.Workers,
		TimeoutMS: h.Timeout.Milliseconds(),
		Retries:   h.Retries,
	})
}

func (j *jsonRenderer) Record(rec *models.PortRecord) error {
	out := jsonRecord{
		Type:     "port",
		Port:     rec.Port,
		Status:   rec.Status,
		Attempts: rec.Attempts,
		RTTMS:    float64(rec.RespTime.Microseconds()) / 1000,
	}

	if rec.Error != nil {
		out.Error = rec.Error.Error()
	}

	if rec.Inspection != nil {
		out.Inspection = &jsonInspection{InspectionResult: *rec.Inspection}
		if rec.Inspection.Err != nil {
			out.Inspection.Error = rec.Inspection.Err.Error()
		}
	}

	return j.enc.Encode(out)
}

func (j *jsonRenderer) Footer(s *scan.Summary) error {
	return j.enc.Encode(jsonSummary{
		Type:      "summary",
		ScanID:    s.ScanID,
		Ports:     s.Ports,
		Open:      s.Open,
		Closed:    s.Closed,
		TimedOut:  s.TimedOut,
		ElapsedMS: float64(s.Elapsed.Microseconds()) / 1000,
	})
}
