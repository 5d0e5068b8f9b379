package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// DefaultSSHPort is used when RemoteSpec.Port is zero
const DefaultSSHPort = 22

// shellMeta marks command strings that need a shell to interpret them
const shellMeta = "\n|&;$`<>*?(){}"

// Spec describes what to open
type Spec struct {
	Kind   Kind        `json:"kind"`
	Local  *LocalSpec  `json:"local,omitempty"`
	Remote *RemoteSpec `json:"remote,omitempty"`
}

// LocalSpec describes a child process on a pseudo-terminal
type LocalSpec struct {
	// Command is a program path, or a whole command line when Args is empty
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Size    Size              `json:"size"`
}

// RemoteSpec describes a shell on an SSH host
type RemoteSpec struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
	User string `json:"user,omitempty"`
	// Credential is an opaque reference resolved at open time
	Credential string `json:"credential,omitempty"`
	// Command runs instead of the login shell when set
	Command string `json:"command,omitempty"`
	Term    string `json:"term,omitempty"`
	Size    Size   `json:"size"`
}

// LocalShell builds a spec for a local command line
func LocalShell(command string) Spec {
	return Spec{Kind: KindLocal, Local: &LocalSpec{Command: command}}
}

// Validate checks that the spec names exactly the variant it claims
func (s Spec) Validate() error {
	switch s.Kind {
	case KindLocal:
		if s.Local == nil {
			return fmt.Errorf("%w: local kind without local settings", ErrInvalidSpec)
		}
		if s.Remote != nil {
			return fmt.Errorf("%w: local kind with remote settings", ErrInvalidSpec)
		}
	case KindRemote:
		if s.Remote == nil {
			return fmt.Errorf("%w: remote kind without remote settings", ErrInvalidSpec)
		}
		if s.Local != nil {
			return fmt.Errorf("%w: remote kind with local settings", ErrInvalidSpec)
		}
		if strings.TrimSpace(s.Remote.Host) == "" {
			return fmt.Errorf("%w: remote host is required", ErrInvalidSpec)
		}
		if s.Remote.Port < 0 || s.Remote.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidSpec, s.Remote.Port)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	return nil
}

// Target is a short human-readable description of what the spec opens
func (s Spec) Target() string {
	switch {
	case s.Local != nil:
		if s.Local.Command == "" {
			return "local shell"
		}
		return strings.TrimSpace(s.Local.Command + " " + strings.Join(s.Local.Args, " "))
	case s.Remote != nil:
		if s.Remote.User != "" {
			return s.Remote.User + "@" + s.Remote.Addr()
		}
		return s.Remote.Addr()
	default:
		return string(s.Kind)
	}
}

// Size returns the initial size requested by the spec
func (s Spec) Size() Size {
	switch {
	case s.Local != nil:
		return s.Local.Size.OrDefault()
	case s.Remote != nil:
		return s.Remote.Size.OrDefault()
	default:
		return DefaultSize
	}
}

// Clone returns a deep copy so a reopened session does not share maps
func (s Spec) Clone() Spec {
	out := Spec{Kind: s.Kind}
	if s.Local != nil {
		l := *s.Local
		l.Args = append([]string(nil), s.Local.Args...)
		if s.Local.Env != nil {
			l.Env = make(map[string]string, len(s.Local.Env))
			for k, v := range s.Local.Env {
				l.Env[k] = v
			}
		}
		out.Local = &l
	}
	if s.Remote != nil {
		r := *s.Remote
		out.Remote = &r
	}
	return out
}

// Argv resolves the command line, falling back to shell when Command is empty
func (l *LocalSpec) Argv(shell string) ([]string, error) {
	command := strings.TrimSpace(l.Command)
	if command == "" {
		command = shell
	}
	if command == "" {
		return nil, fmt.Errorf("%w: no command", ErrInvalidSpec)
	}
	if len(l.Args) > 0 {
		return append([]string{command}, l.Args...), nil
	}
	if strings.ContainsAny(command, shellMeta) {
		return []string{"/bin/sh", "-c", command}, nil
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: no command", ErrInvalidSpec)
	}
	return argv, nil
}

// PortOrDefault returns the port, or 22 when unset
func (r *RemoteSpec) PortOrDefault() int {
	if r.Port == 0 {
		return DefaultSSHPort
	}
	return r.Port
}

// Addr is host:port
func (r *RemoteSpec) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.PortOrDefault()))
}
