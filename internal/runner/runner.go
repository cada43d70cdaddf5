// Package runner executes pipeline step commands as child processes.
package runner

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

const (
	tailLines = 20
	// maxLineLength caps one logged output line.
	maxLineLength   = 64 * 1024
	truncatedSuffix = " [truncated]"
)

// Command is one process invocation.
type Command struct {
	// Step labels output lines in the log.
	Step string
	Args []string
	Dir  string
	// Env is appended to the inherited environment; later entries win.
	Env []string
}

// Result describes a finished process.
type Result struct {
	ExitCode int
	Duration time.Duration
	// Tail holds the last output lines, for error messages.
	Tail []string
}

// ExitError is returned for a process that ran and exited non-zero.
type ExitError struct {
	Step string
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Step, e.Code)
	if len(e.Tail) > 0 {
		msg += ": " + e.Tail[len(e.Tail)-1]
	}
	return msg
}

// ExitCode extracts the exit code from an *ExitError anywhere in err's chain.
func ExitCode(err error) (int, bool) {
	var ee *ExitError
	if stderrors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}

// Runner runs commands. Implementations must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, cmd Command) (Result, error)

// Run calls f.
func (f Func) Run(ctx context.Context, cmd Command) (Result, error) { return f(ctx, cmd) }

// Exec runs commands with os/exec, streaming output to the logger line by line.
type Exec struct {
	Logger *slog.Logger
	// Grace is how long a cancelled process group gets between SIGTERM and SIGKILL.
	Grace time.Duration
}

// NewExec returns an Exec logging through slog.Default.
func NewExec() *Exec {
	return &Exec{Logger: slog.Default(), Grace: 5 * time.Second}
}

// Run starts the command and waits for it. A non-zero exit yields *ExitError
// with the Result filled in; cancellation yields an error wrapping ctx.Err().
func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	if len(c.Args) == 0 {
		return Result{}, fmt.Errorf("%s: empty command", c.Step)
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = e.Grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	logger.Debug("Starting command", logfields.Step(c.Step), slog.String("cmd", strings.Join(c.Args, " ")), logfields.Path(c.Dir))
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%s: failed to start %s: %w", c.Step, c.Args[0], err)
	}

	tail := &tailBuffer{max: tailLines}
	var wg sync.WaitGroup
	wg.Add(2)
	go stream(&wg, stdout, logger, slog.LevelInfo, c.Step, tail)
	go stream(&wg, stderr, logger, slog.LevelInfo, c.Step, tail)
	wg.Wait()
	waitErr := cmd.Wait()

	res := Result{Duration: time.Since(start), Tail: tail.lines()}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", c.Step, ctx.Err())
	}
	if waitErr != nil {
		var ee *exec.ExitError
		if stderrors.As(waitErr, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, &ExitError{Step: c.Step, Code: res.ExitCode, Tail: res.Tail}
		}
		return res, fmt.Errorf("%s: %w", c.Step, waitErr)
	}
	return res, nil
}

func stream(wg *sync.WaitGroup, r io.Reader, logger *slog.Logger, level slog.Level, step string, tail *tailBuffer) {
	defer wg.Done()
	emit := func(line []byte, truncated bool) {
		text := string(line)
		if truncated {
			text += truncatedSuffix
		}
		tail.add(text)
		logger.Log(context.Background(), level, text, logfields.Step(step))
	}

	// lines longer than maxLineLength are truncated, never left unread
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	truncated := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(line) > 0 {
				emit(line, truncated)
			}
			if !stderrors.Is(err, io.EOF) {
				logger.Warn("Failed to read command output", logfields.Step(step), logfields.Error(err))
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		if room := maxLineLength - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
				truncated = true
			}
			line = append(line, chunk...)
		} else if len(chunk) > 0 {
			truncated = true
		}
		if !isPrefix {
			emit(line, truncated)
			line = line[:0]
			truncated = false
		}
	}
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
