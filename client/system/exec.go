package system

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/openrport/rguard/share/logger"
)

var ErrCommandTimeout = errors.New("command execution timed out")

// killGrace bounds how long Wait blocks on inherited pipes after the process was killed.
const killGrace = 2 * time.Second

type CmdResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CmdRunner runs an external tool and captures its output.
type CmdRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*CmdResult, error)
}

type CmdRunnerImpl struct {
	*logger.Logger
}

func NewCmdRunner(l *logger.Logger) *CmdRunnerImpl {
	return &CmdRunnerImpl{
		Logger: l,
	}
}

// Run executes name with args. A timeout of zero means no limit other than ctx. When the
// timeout elapses the process is killed and ErrCommandTimeout is returned together with
// whatever output was captured so far. A non-zero exit is reported through ExitCode and an
// *exec.ExitError.
func (r *CmdRunnerImpl) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*CmdResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Debugf("running %s %v", name, args)
	start := Now()
	err := cmd.Run()

	res := &CmdResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.Debugf("%s killed after %s", name, Now().Sub(start))
		return res, ErrCommandTimeout
	}
	if err != nil {
		return res, err
	}
	return res, nil
}
