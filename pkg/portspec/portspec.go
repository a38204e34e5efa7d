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

// Package portspec parses textual port specifications into a deduplicated,
// insertion-ordered set of TCP ports.
package portspec

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"strconv"
	"strings"

	"github.com/carverauto/portprobe/pkg/models"
)

var ErrInvalidPortSyntax = errors.New("invalid port syntax")

const (
	listSeparator = ","
	rangeDots     = ".."
	rangeDash     = "-"
	bitmapWords   = (int(models.MaxPort) + 1) / 64
)

// segment is an inclusive run of ports kept in first-seen order.
type segment struct {
	lo, hi models.Port
}

// Set is the normalized output of Parse. The full port space is stored as a
// single segment, so expanding "-" costs a bitmap and one entry.
type Set struct {
	segments []segment
	seen     [bitmapWords]uint64
	count    int
}

// Parse expands every specification and keeps each port on its first
// occurrence. Each spec may itself be a comma separated list.
func Parse(specs ...string) (*Set, error) {
	set := &Set{}

	for _, spec := range specs {
		for _, token := range strings.Split(spec, listSeparator) {
			lo, hi, err := parseToken(strings.TrimSpace(token))
			if err != nil {
				return nil, err
			}

			set.add(lo, hi)
		}
	}

	return set, nil
}

// Expand is Parse followed by Slice.
func Expand(specs ...string) ([]models.Port, error) {
	set, err := Parse(specs...)
	if err != nil {
		return nil, err
	}

	return set.Slice(), nil
}

func parseToken(token string) (lo, hi models.Port, err error) {
	if token == "" {
		return 0, 0, fmt.Errorf("%w: empty token", ErrInvalidPortSyntax)
	}

	left, right, isRange := strings.Cut(token, rangeDots)
	if !isRange {
		left, right, isRange = strings.Cut(token, rangeDash)
	}

	if !isRange {
		p, err := parsePort(token, token)
		if err != nil {
			return 0, 0, err
		}

		return p, p, nil
	}

	lo, hi = models.MinPort, models.MaxPort

	if left != "" {
		if lo, err = parsePort(left, token); err != nil {
			return 0, 0, err
		}
	}

	if right != "" {
		if hi, err = parsePort(right, token); err != nil {
			return 0, 0, err
		}
	}

	if lo > hi {
		return 0, 0, fmt.Errorf("%w: %q: range start %d is greater than end %d", ErrInvalidPortSyntax, token, lo, hi)
	}

	return lo, hi, nil
}

func parsePort(s, token string) (models.Port, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %q: port %s is out of range 1..%d", ErrInvalidPortSyntax, token, s, models.MaxPort)
		}

		return 0, fmt.Errorf("%w: %q: %q is not a port number", ErrInvalidPortSyntax, token, s)
	}

	if v == 0 {
		return 0, fmt.Errorf("%w: %q: port 0 is not allowed", ErrInvalidPortSyntax, token)
	}

	return models.Port(v), nil
}

// add appends the ports of [lo, hi] not already present, as maximal runs.
func (s *Set) add(lo, hi models.Port) {
	start := -1

	for p := int(lo); p <= int(hi); p++ {
		if s.has(models.Port(p)) {
			if start >= 0 {
				s.appendRun(models.Port(start), models.Port(p-1))
				start = -1
			}

			continue
		}

		if start < 0 {
			start = p
		}
	}

	if start >= 0 {
		s.appendRun(models.Port(start), hi)
	}
}

func (s *Set) appendRun(lo, hi models.Port) {
	for p := int(lo); p <= int(hi); p++ {
		s.seen[p/64] |= 1 << (uint(p) % 64)
	}

	if n := len(s.segments); n > 0 && s.segments[n-1].hi+1 == lo {
		s.segments[n-1].hi = hi
	} else {
		s.segments = append(s.segments, segment{lo: lo, hi: hi})
	}

	s.count += int(hi-lo) + 1
}

func (s *Set) has(p models.Port) bool {
	return s.seen[p/64]&(1<<(uint(p)%64)) != 0
}

// Contains reports whether p is part of the set.
func (s *Set) Contains(p models.Port) bool {
	if p == 0 {
		return false
	}

	return s.has(p)
}

// Len returns the number of unique ports.
func (s *Set) Len() int {
	return s.count
}

// Segments returns the number of contiguous runs backing the set.
func (s *Set) Segments() int {
	return len(s.segments)
}

// All yields ports lazily in first-seen order.
func (s *Set) All() iter.Seq[models.Port] {
	return func(yield func(models.Port) bool) {
		for _, seg := range s.segments {
			for p := int(seg.lo); p <= int(seg.hi); p++ {
				if !yield(models.Port(p)) {
					return
				}
			}
		}
	}
}

// Slice materializes the set.
func (s *Set) Slice() []models.Port {
	out := make([]models.Port, 0, s.count)
	for p := range s.All() {
		out = append(out, p)
	}

	return out
}

// bitmapCount cross-checks count against the seen bitmap.
func (s *Set) bitmapCount() int {
	n := 0
	for _, w := range s.seen {
		n += bits.OnesCount64(w)
	}

	return n
}
