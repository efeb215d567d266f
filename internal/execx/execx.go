package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by Run when the command exceeds its wall-clock bound.
var ErrTimeout = errors.New("command timed out")

// Result holds the captured output of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs a command to completion, bounded by a timeout. A zero timeout
// means no bound beyond ctx.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// Proc is a long-lived helper process whose stdout is consumed line by line.
type Proc interface {
	Pid() int
	Stdout() io.Reader
	// Stop asks the process group to terminate. Safe to call more than once.
	Stop() error
	Wait() error
}

// Starter launches long-lived helper commands (event listeners, the
// continuous-sync service). stderr is wired to the given writer so helper
// diagnostics end up in the log stream.
type Starter interface {
	Start(ctx context.Context, stderr io.Writer, name string, args ...string) (Proc, error)
}

// System executes commands via os/exec. Helpers get their own process group
// so the whole child tree can be signalled on teardown.
type System struct{}

func (System) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return res, ErrTimeout
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func (System) Start(ctx context.Context, stderr io.Writer, name string, args ...string) (Proc, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &sysProc{cmd: cmd, stdout: stdout}, nil
}

type sysProc struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *sysProc) Pid() int          { return p.cmd.Process.Pid }
func (p *sysProc) Stdout() io.Reader { return p.stdout }

func (p *sysProc) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	// Negative pid signals the process group, covering forked children.
	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGTERM); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (p *sysProc) Wait() error { return p.cmd.Wait() }
