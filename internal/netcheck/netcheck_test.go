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

package netcheck

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validNetworks = `
networks:
  node_management:
    blocks:
      ipv4:
        - label: nmn
          network: 10.2.0.0/16
          subnets:
            - label: default
              network: 10.2.0.0/16
              dhcp:
                start: 10.2.50.0
                end: 10.2.99.252
            - label: bootstrap
              network: 10.2.100.0/24
            - label: uai_macvlan
              network: 10.2.200.0/23
              dhcp:
                start: 10.2.200.10
                end: 10.2.201.244
`

func TestCheckValid(t *testing.T) {
	r, err := Check(strings.NewReader(validNetworks))
	require.NoError(t, err)
	assert.False(t, r.Failed())
	assert.Equal(t, 1, r.Networks)

	var out, errOut bytes.Buffer
	r.Write(&out, &errOut)
	assert.Equal(t, `OK 10.2.0.0/16 in 10.2.0.0/16
OK 10.2.50.0 in 10.2.0.0/16
OK 10.2.99.252 in 10.2.0.0/16
OK 10.2.100.0/24 in 10.2.0.0/16
OK 10.2.200.0/23 in 10.2.0.0/16
OK 10.2.200.10 in 10.2.200.0/23
OK 10.2.201.244 in 10.2.200.0/23
`, out.String())
	assert.Empty(t, errOut.String())
}

func networksWith(subnet string) string {
	return `
networks:
  node_management:
    blocks:
      ipv4:
        - network: 10.2.0.0/16
          subnets:
` + subnet
}

func TestCheckFindings(t *testing.T) {
	tests := []struct {
		name    string
		subnet  string
		failed  bool
		finding string
	}{
		{
			name: "macvlan outside network",
			subnet: `            - label: uai_macvlan
              network: 10.3.0.0/24
`,
			failed:  true,
			finding: "FAILED 10.3.0.0/24 not in 10.2.0.0/16",
		},
		{
			name: "other subnet outside network warns",
			subnet: `            - label: bootstrap
              network: 10.3.0.0/24
`,
			finding: "WARNING 10.3.0.0/24 not in 10.2.0.0/16",
		},
		{
			name: "macvlan dhcp outside subnet",
			subnet: `            - label: uai_macvlan
              network: 10.2.200.0/24
              dhcp:
                start: 10.2.200.10
                end: 10.2.201.244
`,
			failed:  true,
			finding: "FAILED 10.2.201.244 not in 10.2.200.0/24",
		},
		{
			name: "other dhcp outside subnet warns",
			subnet: `            - label: default
              network: 10.2.200.0/24
              dhcp:
                start: 10.2.199.1
                end: 10.2.200.20
`,
			finding: "WARNING 10.2.199.1 not in 10.2.200.0/24",
		},
		{
			name: "host bits set",
			subnet: `            - label: default
              network: 10.2.200.1/24
`,
			failed:  true,
			finding: `FAILED invalid subnet "10.2.200.1/24": host bits set`,
		},
		{
			name: "bad dhcp address",
			subnet: `            - label: uai_macvlan
              network: 10.2.200.0/24
              dhcp:
                start: nope
                end: 10.2.200.20
`,
			failed:  true,
			finding: `FAILED invalid dhcp start "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Check(strings.NewReader(networksWith(tt.subnet)))
			require.NoError(t, err)
			assert.Equal(t, tt.failed, r.Failed())

			var lines []string
			for _, f := range r.Findings {
				lines = append(lines, f.String())
			}
			assert.Contains(t, lines, tt.finding)
		})
	}
}

func TestCheckWriteSplitsStreams(t *testing.T) {
	r, err := Check(strings.NewReader(networksWith(`            - label: bootstrap
              network: 10.3.0.0/24
            - label: uai_macvlan
              network: 10.2.1.0/24
`)))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count(LevelOK))
	assert.Equal(t, 1, r.Count(LevelWarning))

	var out, errOut bytes.Buffer
	r.Write(&out, &errOut)
	assert.Equal(t, "OK 10.2.1.0/24 in 10.2.0.0/16\n", out.String())
	assert.Equal(t, "WARNING 10.3.0.0/24 not in 10.2.0.0/16\n", errOut.String())
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		key   string
		parse bool
	}{
		{name: "not yaml", input: "networks: [unterminated", parse: true},
		{name: "empty", input: "", key: "networks"},
		{name: "no blocks", input: "networks:\n  node_management: {}\n", key: "blocks"},
		{name: "no subnets", input: "networks:\n  node_management:\n    blocks:\n      ipv4:\n        - network: 10.0.0.0/8\n", key: "subnets"},
		{name: "no label", input: networksWith("            - network: 10.2.1.0/24\n"), key: "label"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.parse {
				assert.True(t, errors.Is(err, ErrParse), "err = %v", err)
				return
			}
			var serr *StructureError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.key, serr.Key)
		})
	}
}
