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

// Command shmemrun launches a program as a SHMEM session of N processes on
// the local host.
//
// Example:
//
//	shmemrun -n 4 --verify -- shmem-hello
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/Cray-HPE/uas-mgr/internal/config"
	"github.com/Cray-HPE/uas-mgr/internal/launcher"
	"github.com/Cray-HPE/uas-mgr/internal/logging"
	"github.com/Cray-HPE/uas-mgr/internal/smoke"
)

// flags holds command line settings. Launch flags override the config file
// and environment only when set explicitly.
type flags struct {
	configPath  string
	verbose     bool
	npes        int
	timeout     time.Duration
	initTimeout time.Duration
	segmentDir  string
	tagOutput   bool
	verify      bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "shmemrun [flags] -- program [args...]",
		Short: "Run a program as a local SHMEM session",
		Long: `shmemrun creates a shared memory session for N processing elements (PEs),
starts one copy of the program per PE with the session described in its
environment, forwards their output and waits for all of them.

If any PE fails the session is aborted and the remaining PEs are stopped.
With --verify the PEs' standard output is checked for exactly one
"Hello World from Shmem #<rank> of <count>" line per PE.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd, f, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", os.Getenv("SHMEMRUN_CONFIG"), "path to a YAML config file, env: SHMEMRUN_CONFIG")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&f.segmentDir, "segment-dir", "", "directory for session segments (default /dev/shm)")

	// Defaults shown in --help are the built-in config; the file and the
	// environment still win over flags that are not set.
	def := config.Default()
	fl := rootCmd.Flags()
	// Everything after the program name belongs to the program.
	fl.SetInterspersed(false)
	fl.IntVarP(&f.npes, "npes", "n", def.NPEs, "number of PEs to start")
	fl.DurationVar(&f.timeout, "timeout", def.Timeout, "bound on the whole run (0 disables)")
	fl.DurationVar(&f.initTimeout, "init-timeout", def.InitTimeout, "bound on each PE's init and finalize barriers (0 disables)")
	fl.BoolVar(&f.tagOutput, "tag", def.TagOutput, "prefix forwarded output with the PE number")
	fl.BoolVar(&f.verify, "verify", def.Verify, "verify the hello output of every PE")

	rootCmd.AddCommand(newInspectCmd(f))
	return rootCmd
}

// loadConfig merges the config file, the environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("npes") {
		cfg.NPEs = f.npes
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("init-timeout") {
		cfg.InitTimeout = f.initTimeout
	}
	if changed("segment-dir") {
		cfg.SegmentDir = f.segmentDir
	}
	if changed("tag") {
		cfg.TagOutput = f.tagOutput
	}
	if changed("verify") {
		cfg.Verify = f.verify
	}

	return cfg, cfg.Validate()
}

func runLaunch(cmd *cobra.Command, f *flags, args []string) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	logger, err := logging.NewVerbose(cfg.LogLevel, f.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := launcher.Run(ctx, launcher.Config{
		Program:     args[0],
		Args:        args[1:],
		NPEs:        cfg.NPEs,
		SegmentDir:  cfg.SegmentDir,
		InitTimeout: cfg.InitTimeout,
		Timeout:     cfg.Timeout,
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
		TagOutput:   cfg.TagOutput,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}
	logger.Info("session completed",
		zap.String("session", res.Session),
		zap.Int("npes", cfg.NPEs),
		zap.Duration("elapsed", res.Elapsed))

	if !cfg.Verify {
		return nil
	}
	report, err := smoke.Verify(res.Lines(), cfg.NPEs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "verified %d greetings from %d PEs\n", len(report.Greetings), report.Expected)
	return nil
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))

	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "shmemrun:", err)
		os.Exit(1)
	}
}
