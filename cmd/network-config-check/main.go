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

// Command network-config-check validates the subnets of a networks.yml file
// read from standard input or --file.
//
// Example:
//
//	network-config-check < /etc/ansible/hosts/group_vars/all/networks.yml
//
// Exit status is 0 when every uai_macvlan subnet validates, 2 when one does
// not, 3 when the input is not YAML and 4 when an expected key is missing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cray-HPE/uas-mgr/internal/logging"
	"github.com/Cray-HPE/uas-mgr/internal/netcheck"
)

const (
	exitFailed    = 2
	exitParse     = 3
	exitStructure = 4
)

// exitError carries a process exit status out of the command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	var (
		file    string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:   "network-config-check",
		Short: "Validate the node management subnets of networks.yml",
		Long: `network-config-check reads networks.yml and checks every network under
networks.node_management.blocks.ipv4. Each subnet must lie in its network and
each DHCP start and end address must lie in its subnet.

Only uai_macvlan subnets fail the check. Other subnets that do not validate
are reported as warnings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewVerbose(os.Getenv("NETCHECK_LOG_LEVEL"), verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			in := cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return check(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
		},
	}

	rootCmd.Flags().StringVarP(&file, "file", "f", "", "read networks.yml from this file instead of standard input")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return rootCmd
}

func check(in io.Reader, out, errOut io.Writer, logger *zap.Logger) error {
	report, err := netcheck.Check(in)
	var serr *netcheck.StructureError
	switch {
	case errors.Is(err, netcheck.ErrParse):
		fmt.Fprintln(errOut, "FAILED to parse the provided YAML")
		return &exitError{code: exitParse, err: err}
	case errors.As(err, &serr):
		fmt.Fprintf(errOut, "FAILED to find the expected data structure. Missing key: %s\n", serr.Key)
		return &exitError{code: exitStructure, err: err}
	case err != nil:
		return err
	}

	report.Write(out, errOut)
	logger.Debug("networks checked",
		zap.Int("networks", report.Networks),
		zap.Int("ok", report.Count(netcheck.LevelOK)),
		zap.Int("warnings", report.Count(netcheck.LevelWarning)),
		zap.Int("failures", report.Count(netcheck.LevelFailed)))

	if report.Failed() {
		return &exitError{code: exitFailed, err: errors.New("network configuration is invalid")}
	}
	return nil
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func main() {
	err := execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "network-config-check:", err)
	os.Exit(1)
}
