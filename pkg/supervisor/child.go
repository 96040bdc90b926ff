package supervisor

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zalando-incubator/e2s/pkg/log"
)

// shutdownGrace is how long Terminate waits after SIGTERM before escalating
// to SIGKILL.
const shutdownGrace = 10 * time.Second

// Child wraps the lifecycle of the daemon binary the supervisor execs: start
// it, wait for it to exit, and (on supervisor shutdown) terminate it
// gracefully. Wait must be called exactly once; Terminate only ever signals
// the process and observes the same exit that Wait is blocked on.
type Child struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Start launches the daemon binary with the given arguments. Unlike the
// Python original's fork+exec, a Go process cannot safely exec(2) over
// itself once the runtime is initialized, so the daemon runs as a plain
// child process rather than replacing the supervisor.
func Start(binary string, args []string) (*Child, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "cannot start %s", binary)
	}
	log.Info("started child process",
		zap.String("binary", binary),
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", args),
	)
	return &Child{cmd: cmd, done: make(chan struct{})}, nil
}

// PID returns the child's process id.
func (c *Child) PID() int {
	if c == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Wait blocks until the child exits and logs its exit status. A non-zero
// exit is not itself an error condition for the supervisor: the outer loop
// simply restarts.
func (c *Child) Wait() {
	err := c.cmd.Wait()
	close(c.done)
	if err != nil {
		log.Warn("child process exited",
			zap.Int("pid", c.PID()),
			zap.Error(err),
		)
		return
	}
	log.Info("child process exited", zap.Int("pid", c.PID()))
}

// Terminate sends SIGTERM to the child and, if it has not exited within
// shutdownGrace (observed via the same exit Wait is blocked on), escalates
// to SIGKILL.
func (c *Child) Terminate() {
	if c == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Debugf("cannot signal child %d: %v", c.PID(), err)
		return
	}
	select {
	case <-c.done:
	case <-time.After(shutdownGrace):
		log.Warn("child did not exit after SIGTERM, sending SIGKILL", zap.Int("pid", c.PID()))
		c.cmd.Process.Kill()
	}
}

// SignalTerminate sends SIGTERM to an arbitrary pid. Used by the
// Housekeeper to restart the child on a new binary during a rolling
// upgrade: it holds only the pid (via cluster.SharedState), not the Child
// value that owns the process's Wait().
func SignalTerminate(pid int) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		log.Debugf("cannot signal pid %d: %v", pid, err)
	}
}
