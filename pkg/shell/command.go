package shell

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command like exec.Cmd, but with support:
// - io.Closer interface with graceful stop
// - Wait from multiple places
// - Done channel
// - last stderr output in exit error
type Command struct {
	*exec.Cmd

	// KillTimeout - time between SIGINT and SIGKILL on Close
	KillTimeout time.Duration

	done   chan struct{}
	err    error
	stderr limitBuffer
}

func NewCommand(s string) (*Command, error) {
	args := QuoteSplit(s)
	if len(args) == 0 {
		return nil, errors.New("shell: wrong command: " + s)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = procAttr

	return &Command{
		Cmd:         cmd,
		KillTimeout: 3 * time.Second,
		done:        make(chan struct{}),
		stderr:      limitBuffer{buf: make([]byte, 512)},
	}, nil
}

func (c *Command) Start() error {
	if c.Stderr != nil {
		c.Stderr = io.MultiWriter(c.Stderr, &c.stderr)
	} else {
		c.Stderr = &c.stderr
	}

	if err := c.Cmd.Start(); err != nil {
		return err
	}

	go func() {
		err := c.Cmd.Wait()
		if err != nil && c.stderr.n > 0 {
			err = errors.New(err.Error() + ": " + strings.TrimSpace(c.stderr.String()))
		}
		c.err = err
		close(c.done)
	}()

	return nil
}

func (c *Command) Wait() error {
	<-c.done
	return c.err
}

func (c *Command) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Close - send SIGINT and kill process if it doesn't exit after KillTimeout
func (c *Command) Close() error {
	if c.Process == nil {
		return nil
	}

	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.Process.Signal(os.Interrupt); err != nil {
		_ = c.Process.Kill()
	}

	timer := time.AfterFunc(c.KillTimeout, func() {
		_ = c.Process.Kill()
	})
	defer timer.Stop()

	<-c.done
	return nil
}

type limitBuffer struct {
	buf []byte
	n   int
}

func (l *limitBuffer) String() string {
	if l.n == len(l.buf) {
		return string(l.buf) + "..."
	}
	return string(l.buf[:l.n])
}

func (l *limitBuffer) Write(p []byte) (int, error) {
	if l.n < cap(l.buf) {
		l.n += copy(l.buf[l.n:], p)
	}
	return len(p), nil
}
