package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSpecArgv(t *testing.T) {
	tests := []struct {
		name  string
		spec  LocalSpec
		shell string
		want  []string
	}{
		{"plain", LocalSpec{Command: "ls -la /tmp"}, "", []string{"ls", "-la", "/tmp"}},
		{"quoted", LocalSpec{Command: `grep "two words" file`}, "", []string{"grep", "two words", "file"}},
		{"explicit args", LocalSpec{Command: "/bin/echo", Args: []string{"a b"}}, "", []string{"/bin/echo", "a b"}},
		{"shell metachars", LocalSpec{Command: "ls | wc -l"}, "", []string{"/bin/sh", "-c", "ls | wc -l"}},
		{"default shell", LocalSpec{}, "/bin/zsh", []string{"/bin/zsh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Argv(tt.shell)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalSpecArgvErrors(t *testing.T) {
	_, err := (&LocalSpec{}).Argv("")
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = (&LocalSpec{Command: `echo "unterminated`}).Argv("")
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		ok   bool
	}{
		{"local", LocalShell("bash"), true},
		{"remote", Spec{Kind: KindRemote, Remote: &RemoteSpec{Host: "db01"}}, true},
		{"missing local", Spec{Kind: KindLocal}, false},
		{"mixed", Spec{Kind: KindLocal, Local: &LocalSpec{}, Remote: &RemoteSpec{Host: "x"}}, false},
		{"missing host", Spec{Kind: KindRemote, Remote: &RemoteSpec{}}, false},
		{"bad port", Spec{Kind: KindRemote, Remote: &RemoteSpec{Host: "x", Port: 70000}}, false},
		{"unknown kind", Spec{Kind: "serial"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSpec)
			}
		})
	}
}

func TestSpecTargetAndSize(t *testing.T) {
	remote := Spec{Kind: KindRemote, Remote: &RemoteSpec{Host: "db01", User: "ops", Size: Size{Rows: 40, Cols: 120}}}
	assert.Equal(t, "ops@db01:22", remote.Target())
	assert.Equal(t, Size{Rows: 40, Cols: 120}, remote.Size())

	local := LocalShell("htop")
	assert.Equal(t, "htop", local.Target())
	assert.Equal(t, DefaultSize, local.Size())

	assert.Equal(t, "[::1]:2222", (&RemoteSpec{Host: "::1", Port: 2222}).Addr())
}

func TestSpecClone(t *testing.T) {
	orig := Spec{Kind: KindLocal, Local: &LocalSpec{Command: "env", Env: map[string]string{"A": "1"}, Args: []string{"x"}}}
	clone := orig.Clone()

	clone.Local.Env["A"] = "2"
	clone.Local.Args[0] = "y"

	assert.Equal(t, "1", orig.Local.Env["A"])
	assert.Equal(t, "x", orig.Local.Args[0])
}

func TestErrorsUnwrap(t *testing.T) {
	cause := assert.AnError

	spawn := &SpawnError{Command: "zsh", Err: cause}
	assert.ErrorIs(t, spawn, cause)
	assert.Contains(t, spawn.Error(), "zsh")

	conn := &ConnectError{Host: "db01", Port: 22, Stage: StageDial, Err: cause}
	assert.ErrorIs(t, conn, cause)
	assert.Contains(t, conn.Error(), "db01:22")
	assert.Contains(t, conn.Error(), "dial")
}
