package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// readBufferSize is the largest Data event a pump produces
const readBufferSize = 4096

// drainGrace bounds how long output is read after the child exits. A
// background job that keeps the terminal open would otherwise hold the pump.
const drainGrace = 250 * time.Millisecond

// localTransport runs a child process on a pseudo-terminal
type localTransport struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	grace  time.Duration
	logger *zap.Logger

	events  chan Event
	pumped  chan struct{} // closed when readPump returns
	exited  chan struct{} // closed after cmd.Wait returns
	closing atomic.Bool

	closeOnce sync.Once
	ptyOnce   sync.Once
}

func (d *Dialer) openLocal(ctx context.Context, spec *LocalSpec) (Transport, error) {
	argv, err := spec.Argv(d.opts.DefaultShell)
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Command: argv[0], Err: err}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = os.Getenv("HOME")
	}

	// Set environment variables
	cmd.Env = append(os.Environ(), "TERM="+d.opts.TermType)
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	size := spec.Size.OrDefault()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, &SpawnError{Command: argv[0], Err: err}
	}

	t := &localTransport{
		cmd:    cmd,
		ptmx:   ptmx,
		grace:  d.opts.CloseGrace,
		logger: d.logger.With(zap.String("command", argv[0]), zap.Int("pid", cmd.Process.Pid)),
		events: make(chan Event, 64),
		pumped: make(chan struct{}),
		exited: make(chan struct{}),
	}

	go t.readPump()
	go t.waitExit()

	t.logger.Debug("local transport started", zap.Stringer("size", size))
	return t, nil
}

func (t *localTransport) Kind() Kind { return KindLocal }

func (t *localTransport) Events() <-chan Event { return t.events }

// readPump forwards PTY output until the PTY reports an error
func (t *localTransport) readPump() {
	defer close(t.pumped)

	buf := make([]byte, readBufferSize)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.events <- Event{Type: EventData, Data: data}
		}
		if err != nil {
			return
		}
	}
}

// waitExit reaps the child, lets readPump drain, then emits the terminal event
func (t *localTransport) waitExit() {
	err := t.cmd.Wait()
	close(t.exited)

	select {
	case <-t.pumped:
	case <-time.After(drainGrace):
		t.closePTY()
		<-t.pumped
	}
	t.closePTY()

	t.events <- t.terminalEvent(err)
	close(t.events)
}

func (t *localTransport) terminalEvent(waitErr error) Event {
	if t.closing.Load() {
		return Event{Type: EventClosed, Reason: ReasonClosed}
	}

	if waitErr == nil {
		return Event{Type: EventClosed, Reason: ReasonExit, ExitCode: 0, HasCode: true}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Event{Type: EventClosed, Reason: ReasonExit, ExitCode: exitErr.ExitCode(), HasCode: true}
	}

	return Event{Type: EventError, Err: fmt.Errorf("wait: %w", waitErr)}
}

func (t *localTransport) closePTY() {
	t.ptyOnce.Do(func() {
		if err := t.ptmx.Close(); err != nil {
			t.logger.Debug("pty close", zap.Error(err))
		}
	})
}

// Write sends input to the child's terminal
func (t *localTransport) Write(p []byte) error {
	if t.closing.Load() {
		return ErrTransportClosed
	}
	for len(p) > 0 {
		n, err := t.ptmx.Write(p)
		if err != nil {
			if t.closing.Load() || errors.Is(err, os.ErrClosed) {
				return ErrTransportClosed
			}
			return fmt.Errorf("pty write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Resize changes the terminal dimensions
func (t *localTransport) Resize(size Size) error {
	if t.closing.Load() {
		return ErrTransportClosed
	}
	select {
	case <-t.exited:
		return ErrTransportClosed
	default:
	}
	return pty.Setsize(t.ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// Close hangs up the terminal, then kills the child if it outlives the grace
func (t *localTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closing.Store(true)

		select {
		case <-t.exited:
			return
		default:
		}

		t.signal(syscall.SIGHUP)
		t.signal(syscall.SIGTERM)

		timer := time.NewTimer(t.grace)
		defer timer.Stop()

		select {
		case <-t.exited:
		case <-timer.C:
			t.logger.Warn("process ignored termination, killing")
			t.signal(syscall.SIGKILL)
			<-t.exited
		}
	})
	return nil
}

// signal delivers sig to the child's process group. The child leads its own
// session, so its pid is the group id.
func (t *localTransport) signal(sig syscall.Signal) {
	pid := t.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil {
		if err := t.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			t.logger.Debug("signal failed", zap.Stringer("signal", sig), zap.Error(err))
		}
	}
}
