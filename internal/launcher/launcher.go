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

// Package launcher starts the processes of a SHMEM session and supervises
// them until they exit.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
)

// ErrPEFailed is returned when a PE process exits unsuccessfully.
var ErrPEFailed = errors.New("pe failed")

// Config describes one launch.
type Config struct {
	// Program and Args are run once per PE.
	Program string
	Args    []string

	NPEs int

	// Session names the segment; a random name is generated when empty.
	Session    string
	SegmentDir string

	// InitTimeout is passed to every PE to bound its init and finalize
	// barriers. Timeout bounds the whole run. Zero disables either.
	InitTimeout time.Duration
	Timeout     time.Duration

	// Env is the base environment for the PEs; nil means os.Environ().
	Env []string

	// Stdout and Stderr receive the PEs' output line by line; nil discards.
	Stdout io.Writer
	Stderr io.Writer
	// TagOutput prefixes forwarded lines with "[pe] ".
	TagOutput bool

	Logger *zap.Logger
}

// PEResult is the outcome of one PE process.
type PEResult struct {
	PE       int
	PID      int
	ExitCode int
	Stdout   []string
	Err      error
}

// Result is the outcome of a launch.
type Result struct {
	Session string
	PEs     []PEResult
	Elapsed time.Duration
}

// Lines returns every PE's stdout lines, ordered by PE.
func (r *Result) Lines() []string {
	var lines []string
	for _, pe := range r.PEs {
		lines = append(lines, pe.Stdout...)
	}
	return lines
}

// ExitCode returns the first non-zero PE exit code, or 0.
func (r *Result) ExitCode() int {
	for _, pe := range r.PEs {
		if pe.ExitCode != 0 {
			return pe.ExitCode
		}
	}
	return 0
}

// Run creates a session, starts cfg.NPEs copies of cfg.Program in it and
// waits for all of them. The first PE to fail, or to exit without finalizing,
// aborts the session so peers blocked in the runtime return. A failed PE also
// kills the remaining processes.
// The session segment is removed before Run returns.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Program == "" {
		return nil, errors.New("no program to launch")
	}
	if cfg.NPEs < 1 || cfg.NPEs > shmem.MaxPEs {
		return nil, fmt.Errorf("npes %d out of range [1, %d]", cfg.NPEs, shmem.MaxPEs)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	session := cfg.Session
	if session == "" {
		session = "hello-" + uuid.NewString()
	}
	logger = logger.With(zap.String("session", session))

	seg, err := shmem.CreateSession(session, cfg.NPEs, cfg.SegmentDir)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		seg.Close()
		if err := shmem.RemoveSession(session, cfg.SegmentDir); err != nil {
			logger.Warn("failed to remove session segment", zap.Error(err))
		}
	}()
	logger.Debug("session created", zap.String("path", seg.Path), zap.Int("npes", cfg.NPEs))

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	baseEnv := cfg.Env
	if baseEnv == nil {
		baseEnv = os.Environ()
	}
	stdout := newLineWriter(cfg.Stdout, cfg.TagOutput)
	stderr := newLineWriter(cfg.Stderr, cfg.TagOutput)

	res := &Result{Session: session, PEs: make([]PEResult, cfg.NPEs)}
	for pe := range res.PEs {
		res.PEs[pe].PE = pe
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	attachCtx, stopAttach := context.WithCancel(gctx)
	attachDone := make(chan struct{})
	go func() {
		defer close(attachDone)
		if err := seg.WaitForAttach(attachCtx, cfg.NPEs); err == nil {
			logger.Debug("all pes attached", zap.Duration("after", time.Since(start)))
		}
	}()

	var startErr error
	for pe := 0; pe < cfg.NPEs; pe++ {
		opts := shmem.Options{
			Session: session,
			PE:      pe,
			NPEs:    cfg.NPEs,
			Dir:     cfg.SegmentDir,
			Timeout: cfg.InitTimeout,
		}
		p, err := startPE(gctx, cfg, opts, baseEnv)
		if err != nil {
			startErr = fmt.Errorf("start pe %d: %w", pe, err)
			res.PEs[pe] = PEResult{PE: pe, ExitCode: -1, Err: err}
			abort(seg, logger)
			break
		}
		logger.Debug("pe started", zap.Int("pe", pe), zap.Int("pid", p.cmd.Process.Pid))

		g.Go(func() error {
			r := p.wait(stdout, stderr)
			res.PEs[r.PE] = r
			if r.Err != nil {
				logger.Warn("pe failed", zap.Int("pe", r.PE), zap.Int("exit_code", r.ExitCode), zap.Error(r.Err))
				abort(seg, logger)
				return fmt.Errorf("%w: pe %d: %v", ErrPEFailed, r.PE, r.Err)
			}
			if state := seg.Slot(r.PE).State(); state != shmem.SlotFinalized {
				// Peers would wait in a barrier this PE never reaches.
				logger.Warn("pe exited without finalizing",
					zap.Int("pe", r.PE), zap.String("slot_state", shmem.SlotStateName(state)))
				abort(seg, logger)
				return nil
			}
			logger.Debug("pe exited", zap.Int("pe", r.PE))
			return nil
		})
	}

	waitErr := g.Wait()
	res.Elapsed = time.Since(start)
	stopAttach()
	<-attachDone

	st := seg.Snapshot()
	logger.Debug("session finished",
		zap.Duration("elapsed", res.Elapsed),
		zap.Uint32("attached", st.Attached),
		zap.Uint32("finalized", st.Finalized),
		zap.Bool("aborted", st.Aborted))

	if err := errors.Join(startErr, waitErr); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		return res, err
	}
	return res, nil
}

func abort(seg *shmem.Segment, logger *zap.Logger) {
	if err := seg.Abort(); err != nil {
		logger.Warn("failed to abort session", zap.Error(err))
	}
}

type peProcess struct {
	pe     int
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func startPE(ctx context.Context, cfg Config, opts shmem.Options, baseEnv []string) (*peProcess, error) {
	cmd := exec.CommandContext(ctx, cfg.Program, cfg.Args...)
	cmd.Env = append(append([]string(nil), baseEnv...), opts.Env()...)
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &peProcess{pe: opts.PE, cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// wait drains the PE's output and then reaps it.
func (p *peProcess) wait(stdout, stderr *lineWriter) PEResult {
	r := PEResult{PE: p.pe, PID: p.cmd.Process.Pid}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(p.stdout, func(line string) {
			r.Stdout = append(r.Stdout, line)
			stdout.writeLine(p.pe, line)
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(p.stderr, func(line string) {
			stderr.writeLine(p.pe, line)
		})
	}()
	wg.Wait()

	if err := p.cmd.Wait(); err != nil {
		r.Err = err
		r.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.ExitCode = exitErr.ExitCode()
		}
	}
	return r
}

func scanLines(rd io.Reader, fn func(string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// Drain whatever a scanner error left behind so the child never blocks
	// on a full pipe.
	io.Copy(io.Discard, rd)
}

// lineWriter serializes whole lines from many PEs onto one writer.
type lineWriter struct {
	mu  sync.Mutex
	w   io.Writer
	tag bool
}

func newLineWriter(w io.Writer, tag bool) *lineWriter {
	if w == nil {
		w = io.Discard
	}
	return &lineWriter{w: w, tag: tag}
}

func (l *lineWriter) writeLine(pe int, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tag {
		fmt.Fprintf(l.w, "[%d] %s\n", pe, line)
		return
	}
	fmt.Fprintln(l.w, line)
}
