package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// remoteTransport is a shell channel on an SSH client connection
type remoteTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	grace   time.Duration
	logger  *zap.Logger

	events  chan Event
	exited  chan struct{} // closed after session.Wait returns
	closing atomic.Bool
	dropErr atomic.Value // error that ended the connection

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (d *Dialer) openRemote(ctx context.Context, spec *RemoteSpec) (_ Transport, err error) {
	port := spec.PortOrDefault()
	addr := spec.Addr()
	fail := func(stage Stage, cause error) error {
		return &ConnectError{Host: spec.Host, Port: port, Stage: stage, Err: cause}
	}

	cred, err := d.resolveCredential(ctx, spec)
	if err != nil {
		return nil, fail(StageCredential, err)
	}
	user := spec.User
	if user == "" {
		user = cred.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	hostKeys, err := d.hostKeyCallback()
	if err != nil {
		return nil, fail(StageHandshake, err)
	}

	auth, closeAgent := d.authMethods(cred)
	defer closeAgent()

	dialer := net.Dialer{Timeout: d.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, fail(StageResolve, err)
		}
		return nil, fail(StageDial, err)
	}

	// Every later failure releases what was acquired so far
	var client *ssh.Client
	var session *ssh.Session
	defer func() {
		if err == nil {
			return
		}
		if session != nil {
			_ = session.Close()
		}
		if client != nil {
			_ = client.Close()
		} else {
			_ = conn.Close()
		}
	}()

	// Login is bounded by the login timeout and by ctx
	_ = conn.SetDeadline(time.Now().Add(d.opts.LoginTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	clientConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         d.opts.LoginTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(StageHandshake, ctx.Err())
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fail(StageAuth, err)
		}
		return nil, fail(StageHandshake, err)
	}
	client = ssh.NewClient(sshConn, chans, reqs)

	session, err = client.NewSession()
	if err != nil {
		return nil, fail(StageSession, err)
	}

	term := spec.Term
	if term == "" {
		term = d.opts.TermType
	}
	size := spec.Size.OrDefault()
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err = session.RequestPty(term, int(size.Rows), int(size.Cols), modes); err != nil {
		return nil, fail(StagePTY, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fail(StageSession, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fail(StageSession, err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, fail(StageSession, err)
	}

	if spec.Command != "" {
		err = session.Start(spec.Command)
	} else {
		err = session.Shell()
	}
	if err != nil {
		return nil, fail(StageShell, err)
	}

	if ctx.Err() != nil {
		err = ctx.Err()
		return nil, fail(StageShell, err)
	}
	_ = conn.SetDeadline(time.Time{})

	t := &remoteTransport{
		client:  client,
		session: session,
		stdin:   stdin,
		grace:   d.opts.CloseGrace,
		logger:  d.logger.With(zap.String("host", addr), zap.String("user", user)),
		events:  make(chan Event, 64),
		exited:  make(chan struct{}),
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go t.readPump(stdout, &pumps)
	go t.readPump(stderr, &pumps)
	go t.waitExit(&pumps)
	if d.opts.KeepAlive > 0 {
		go t.keepAlive(d.opts.KeepAlive)
	}

	t.logger.Debug("remote transport started", zap.Stringer("size", size))
	return t, nil
}

// hostKeyCallback verifies hosts against known_hosts unless configured insecure
func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.InsecureHostKeys {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := d.opts.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

// authMethods orders auth as agent, then public key, then password
// resolveCredential resolves the spec's reference, or asks a host-aware
// resolver for a match when the spec names none
func (d *Dialer) resolveCredential(ctx context.Context, spec *RemoteSpec) (Credential, error) {
	hr, ok := d.opts.Credentials.(HostCredentialResolver)
	if spec.Credential != "" || !ok {
		return d.opts.Credentials.Resolve(ctx, spec.Credential)
	}

	cred, err := hr.ResolveHost(ctx, spec.User, spec.Host)
	if errors.Is(err, ErrUnknownCredential) {
		return Credential{}, nil
	}
	return cred, err
}

func (d *Dialer) authMethods(cred Credential) ([]ssh.AuthMethod, func()) {
	var methods []ssh.AuthMethod
	closeAgent := func() {}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && (cred.UseAgent || !d.opts.DisableAgent) {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closeAgent = func() { _ = conn.Close() }
		} else {
			d.logger.Debug("ssh agent unavailable", zap.Error(err))
		}
	}

	if len(cred.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cred.PrivateKey, []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(cred.PrivateKey)
		}
		if err != nil {
			d.logger.Warn("private key rejected", zap.Error(err))
		} else {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if cred.Password != "" {
		password := cred.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	return methods, closeAgent
}

func (t *remoteTransport) Kind() Kind { return KindRemote }

func (t *remoteTransport) Events() <-chan Event { return t.events }

func (t *remoteTransport) readPump(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
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

// waitExit waits for the remote command, then emits the terminal event
func (t *remoteTransport) waitExit(pumps *sync.WaitGroup) {
	err := t.session.Wait()
	close(t.exited)

	pumped := make(chan struct{})
	go func() {
		pumps.Wait()
		close(pumped)
	}()
	select {
	case <-pumped:
	case <-time.After(drainGrace):
		_ = t.client.Close()
		<-pumped
	}
	_ = t.client.Close()

	t.events <- t.terminalEvent(err)
	close(t.events)
}

func (t *remoteTransport) terminalEvent(waitErr error) Event {
	if t.closing.Load() {
		return Event{Type: EventClosed, Reason: ReasonClosed}
	}
	if dropped, ok := t.dropErr.Load().(error); ok {
		return Event{Type: EventClosed, Reason: ReasonNetwork, Err: dropped}
	}

	if waitErr == nil {
		return Event{Type: EventClosed, Reason: ReasonExit, ExitCode: 0, HasCode: true}
	}

	var exitErr *ssh.ExitError
	if errors.As(waitErr, &exitErr) {
		return Event{Type: EventClosed, Reason: ReasonExit, ExitCode: exitErr.ExitStatus(), HasCode: true}
	}

	// No exit status means the channel died with the connection
	return Event{Type: EventClosed, Reason: ReasonNetwork, Err: waitErr}
}

// keepAlive drops the connection when the peer stops answering
func (t *remoteTransport) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.exited:
			return
		case <-ticker.C:
			reply := make(chan error, 1)
			go func() {
				_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
				reply <- err
			}()

			var err error
			select {
			case err = <-reply:
			case <-time.After(interval):
				err = errors.New("keepalive timed out")
			case <-t.exited:
				return
			}
			if err != nil {
				t.dropErr.Store(fmt.Errorf("connection lost: %w", err))
				t.logger.Warn("keepalive failed, dropping connection", zap.Error(err))
				_ = t.client.Close()
				return
			}
		}
	}
}

// Write sends input to the remote shell
func (t *remoteTransport) Write(p []byte) error {
	if t.closing.Load() {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(p); err != nil {
		if t.closing.Load() || errors.Is(err, io.EOF) {
			return ErrTransportClosed
		}
		return fmt.Errorf("ssh write: %w", err)
	}
	return nil
}

// Resize sends a window-change request
func (t *remoteTransport) Resize(size Size) error {
	if t.closing.Load() {
		return ErrTransportClosed
	}
	return t.session.WindowChange(int(size.Rows), int(size.Cols))
}

// Close closes the channel, then the connection if the channel lingers
func (t *remoteTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closing.Store(true)

		select {
		case <-t.exited:
			return
		default:
		}

		_ = t.session.Close()

		timer := time.NewTimer(t.grace)
		defer timer.Stop()

		select {
		case <-t.exited:
		case <-timer.C:
			t.logger.Warn("channel did not close, dropping connection")
			_ = t.client.Close()
			<-t.exited
		}
	})
	return nil
}
