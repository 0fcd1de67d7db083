/*
 *
 * Copyright 2025 Hewlett Packard Enterprise Development LP.
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
 *
 */

// Package smoke checks the output of a SHMEM hello run.
package smoke

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNotGreeting is returned by ParseGreeting for lines that are not a
// greeting.
var ErrNotGreeting = errors.New("not a greeting line")

var greetingRE = regexp.MustCompile(`^Hello World from Shmem #(\d+) of (\d+)$`)

// Greeting is one PE's hello line.
type Greeting struct {
	PE   int
	NPEs int
}

// String formats g exactly as the hello program prints it.
func (g Greeting) String() string {
	return fmt.Sprintf("Hello World from Shmem #%d of %d", g.PE, g.NPEs)
}

// ParseGreeting parses a single greeting line. Trailing whitespace is
// ignored.
func ParseGreeting(line string) (Greeting, error) {
	m := greetingRE.FindStringSubmatch(strings.TrimRight(line, " \t\r\n"))
	if m == nil {
		return Greeting{}, fmt.Errorf("%w: %q", ErrNotGreeting, line)
	}
	pe, err := strconv.Atoi(m[1])
	if err != nil {
		return Greeting{}, fmt.Errorf("%w: rank: %v", ErrNotGreeting, err)
	}
	npes, err := strconv.Atoi(m[2])
	if err != nil {
		return Greeting{}, fmt.Errorf("%w: count: %v", ErrNotGreeting, err)
	}
	return Greeting{PE: pe, NPEs: npes}, nil
}

// Report summarizes a run's output.
type Report struct {
	Expected  int
	Greetings []Greeting
	// Other counts lines that were not greetings. Any such line fails
	// verification.
	Other int
}

// VerificationError lists every property a run violated.
type VerificationError struct {
	Problems []string
}

func (e *VerificationError) Error() string {
	return "smoke verification failed: " + strings.Join(e.Problems, "; ")
}

// Verify checks the output lines of a run of n PEs: exactly n lines in total,
// all of them greetings, each rank unique and in [0, n), and every greeting
// reporting n.
func Verify(lines []string, n int) (*Report, error) {
	r := &Report{Expected: n}
	for _, line := range lines {
		g, err := ParseGreeting(line)
		if err != nil {
			r.Other++
			continue
		}
		r.Greetings = append(r.Greetings, g)
	}

	var problems []string
	if len(lines) != n {
		problems = append(problems, fmt.Sprintf("got %d lines, want %d", len(lines), n))
	}
	if len(r.Greetings) != n {
		problems = append(problems, fmt.Sprintf("got %d greetings, want %d", len(r.Greetings), n))
	}

	seen := make(map[int]int)
	for _, g := range r.Greetings {
		seen[g.PE]++
		if g.PE < 0 || g.PE >= n {
			problems = append(problems, fmt.Sprintf("rank %d out of range [0, %d)", g.PE, n))
		}
		if g.NPEs != n {
			problems = append(problems, fmt.Sprintf("rank %d reports %d PEs, want %d", g.PE, g.NPEs, n))
		}
	}

	var dups []int
	for pe, count := range seen {
		if count > 1 {
			dups = append(dups, pe)
		}
	}
	sort.Ints(dups)
	for _, pe := range dups {
		problems = append(problems, fmt.Sprintf("rank %d reported %d times", pe, seen[pe]))
	}

	if len(problems) > 0 {
		return r, &VerificationError{Problems: problems}
	}
	return r, nil
}
