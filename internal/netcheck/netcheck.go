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

// Package netcheck validates the node management subnets of a networks.yml
// file. Every subnet must lie in its network and any DHCP range must lie in
// its subnet. Only uai_macvlan subnets fail the check; problems with other
// subnets are reported as warnings.
package netcheck

import (
	"errors"
	"fmt"
	"io"
	"net/netip"

	"gopkg.in/yaml.v3"
)

// StrictLabel is the subnet label whose problems are failures rather than
// warnings.
const StrictLabel = "uai_macvlan"

// ErrParse is returned when the input is not YAML.
var ErrParse = errors.New("failed to parse the provided YAML")

// StructureError reports a key that is missing or has the wrong shape.
type StructureError struct {
	Key  string
	Want string
}

func (e *StructureError) Error() string {
	if e.Want == "" {
		return "missing key: " + e.Key
	}
	return fmt.Sprintf("key %s: want %s", e.Key, e.Want)
}

// Level grades a Finding.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelFailed
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "OK"
	case LevelWarning:
		return "WARNING"
	default:
		return "FAILED"
	}
}

// Finding is the outcome of one containment check.
type Finding struct {
	Level Level
	Text  string
}

func (f Finding) String() string {
	return f.Level.String() + " " + f.Text
}

// Report holds the findings of one Check in input order.
type Report struct {
	Networks int
	Findings []Finding
}

// Failed reports whether any finding is a failure.
func (r *Report) Failed() bool {
	for _, f := range r.Findings {
		if f.Level == LevelFailed {
			return true
		}
	}
	return false
}

// Count returns the number of findings at level l.
func (r *Report) Count(l Level) int {
	n := 0
	for _, f := range r.Findings {
		if f.Level == l {
			n++
		}
	}
	return n
}

// Write prints OK findings to out and the rest to errOut.
func (r *Report) Write(out, errOut io.Writer) {
	for _, f := range r.Findings {
		w := errOut
		if f.Level == LevelOK {
			w = out
		}
		fmt.Fprintln(w, f)
	}
}

// Check reads a networks.yml document from rd and validates every network
// under networks.node_management.blocks.ipv4.
func Check(rd io.Reader) (*Report, error) {
	var doc any
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	blocks, err := lookup(doc, "networks", "node_management", "blocks", "ipv4")
	if err != nil {
		return nil, err
	}
	networks, ok := blocks.([]any)
	if !ok {
		return nil, &StructureError{Key: "ipv4", Want: "list"}
	}

	r := &Report{}
	for _, n := range networks {
		if err := r.checkNetwork(n); err != nil {
			return nil, err
		}
		r.Networks++
	}
	return r, nil
}

func (r *Report) checkNetwork(v any) error {
	netStr, err := stringField(v, "network")
	if err != nil {
		return err
	}
	subnets, err := lookup(v, "subnets")
	if err != nil {
		return err
	}
	list, ok := subnets.([]any)
	if !ok {
		return &StructureError{Key: "subnets", Want: "list"}
	}

	network, ok := r.parsePrefix(netStr, "network")
	for _, s := range list {
		label, err := stringField(s, "label")
		if err != nil {
			return err
		}
		subStr, err := stringField(s, "network")
		if err != nil {
			return err
		}
		warn := label != StrictLabel

		subnet, subOK := r.parsePrefix(subStr, "subnet")
		if ok && subOK {
			r.add(network.Overlaps(subnet), warn, subnet.String(), network.String())
		}

		dhcp, found := field(s, "dhcp")
		if !found {
			continue
		}
		for _, key := range []string{"start", "end"} {
			addrStr, err := stringField(dhcp, key)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(addrStr)
			if err != nil {
				r.Findings = append(r.Findings, Finding{LevelFailed, fmt.Sprintf("invalid dhcp %s %q", key, addrStr)})
				continue
			}
			if subOK {
				r.add(subnet.Contains(addr), warn, addr.String(), subnet.String())
			}
		}
	}
	return nil
}

// parsePrefix records a failure for malformed prefixes and for prefixes
// with host bits set.
func (r *Report) parsePrefix(s, what string) (netip.Prefix, bool) {
	p, err := netip.ParsePrefix(s)
	if err == nil && p != p.Masked() {
		err = errors.New("host bits set")
	}
	if err != nil {
		r.Findings = append(r.Findings, Finding{LevelFailed, fmt.Sprintf("invalid %s %q: %v", what, s, err)})
		return netip.Prefix{}, false
	}
	return p, true
}

func (r *Report) add(in, warn bool, subject, within string) {
	switch {
	case in:
		r.Findings = append(r.Findings, Finding{LevelOK, subject + " in " + within})
	case warn:
		r.Findings = append(r.Findings, Finding{LevelWarning, subject + " not in " + within})
	default:
		r.Findings = append(r.Findings, Finding{LevelFailed, subject + " not in " + within})
	}
}

func field(v any, key string) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	x, ok := m[key]
	return x, ok
}

func lookup(v any, keys ...string) (any, error) {
	for _, key := range keys {
		x, ok := field(v, key)
		if !ok {
			return nil, &StructureError{Key: key}
		}
		v = x
	}
	return v, nil
}

func stringField(v any, key string) (string, error) {
	x, err := lookup(v, key)
	if err != nil {
		return "", err
	}
	s, ok := x.(string)
	if !ok {
		return "", &StructureError{Key: key, Want: "string"}
	}
	return s, nil
}
