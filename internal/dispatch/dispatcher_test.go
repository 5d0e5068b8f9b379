package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termengine/internal/registry"
	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/stream"
	"github.com/GriffinCanCode/termengine/internal/transport"
	"github.com/GriffinCanCode/termengine/internal/transport/transporttest"
)

var remoteSpec = transport.Spec{
	Kind:   transport.KindRemote,
	Remote: &transport.RemoteSpec{Host: "db01", User: "ops"},
}

type fixture struct {
	opener *transporttest.Opener
	reg    *registry.Manager
	d      *Dispatcher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	opener := transporttest.NewOpener()
	reg := registry.New(registry.Options{Opener: opener, DrainTimeout: time.Second, Retain: time.Minute})
	d := New(reg, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
		d.Close()
	})
	return &fixture{opener: opener, reg: reg, d: d}
}

func (f *fixture) open(t *testing.T, spec transport.Spec) (id.SessionID, *transporttest.Fake) {
	t.Helper()
	sid, err := f.d.RequestOpen(context.Background(), spec)
	require.NoError(t, err)
	select {
	case fake := <-f.opener.Opened():
		s, err := f.reg.Get(sid)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return s.State() == session.StateActive }, 5*time.Second, 5*time.Millisecond)
		return sid, fake
	case <-time.After(5 * time.Second):
		t.Fatal("transport never opened")
		return "", nil
	}
}

// until reads outputs until one satisfies stop
func until(t *testing.T, ch <-chan Output, stop func(Output) bool) []Output {
	t.Helper()
	var out []Output
	deadline := time.After(5 * time.Second)
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, o)
			if stop(o) {
				return out
			}
		case <-deadline:
			t.Fatalf("no matching output after %d outputs", len(out))
		}
	}
}

func plain(outputs []Output) string {
	var chunks []stream.Chunk
	for _, o := range outputs {
		if o.Chunk != nil {
			chunks = append(chunks, *o.Chunk)
		}
	}
	return stream.Plain(chunks)
}

func TestFanInTagsSessions(t *testing.T) {
	f := newFixture(t, Options{})
	a, fakeA := f.open(t, transport.LocalShell("bash"))
	b, fakeB := f.open(t, transport.LocalShell("zsh"))

	fakeA.Emit("from a")
	fakeA.Exit(0)
	fakeB.Emit("from b")
	fakeB.Exit(1)

	bySession := map[id.SessionID][]Output{}
	ended := 0
	until(t, f.d.Events(), func(o Output) bool {
		bySession[o.SessionID] = append(bySession[o.SessionID], o)
		if o.Terminal() {
			ended++
		}
		return ended == 2
	})

	assert.Equal(t, "from a", plain(bySession[a]))
	assert.Equal(t, "from b", plain(bySession[b]))
	for _, outs := range bySession {
		last := outs[len(outs)-1]
		assert.Equal(t, session.StateClosed, last.Transition.To)
		for i := 1; i < len(outs); i++ {
			assert.Greater(t, outs[i].Seq, outs[i-1].Seq)
		}
	}
}

func TestSubmitInputAndKeys(t *testing.T) {
	f := newFixture(t, Options{})
	sid, fake := f.open(t, transport.LocalShell("bash"))
	ctx := context.Background()

	require.NoError(t, f.d.SubmitInput(ctx, sid, []byte("ls")))
	require.NoError(t, f.d.SubmitKey(ctx, sid, "Enter"))
	require.NoError(t, f.d.SubmitKey(ctx, sid, "C-c"))
	assert.ErrorIs(t, f.d.SubmitKey(ctx, sid, "hyper"), ErrUnknownKey)

	require.Eventually(t, func() bool { return fake.Written() == "ls\r\x03" }, 5*time.Second, 5*time.Millisecond)
}

func TestSubmitCommandRecordsHistory(t *testing.T) {
	f := newFixture(t, Options{})
	sid, fake := f.open(t, transport.LocalShell("bash"))

	c, err := f.d.SubmitCommand(context.Background(), sid, "uptime")
	require.NoError(t, err)
	assert.Equal(t, "uptime", c.Line)

	require.Eventually(t, func() bool { return fake.Written() == "uptime\r" }, 5*time.Second, 5*time.Millisecond)
	s, err := f.reg.Get(sid)
	require.NoError(t, err)
	require.Len(t, s.History(), 1)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, f.d.SubmitInput(ctx, "term_nope", []byte("x")), registry.ErrUnknownSession)
	assert.ErrorIs(t, f.d.RequestResize("term_nope", 10, 10), registry.ErrUnknownSession)
	assert.ErrorIs(t, f.d.RequestClose("term_nope"), registry.ErrUnknownSession)
	_, err := f.d.RequestReconnect(ctx, "term_nope")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
	_, err = f.d.Attach(ctx, "term_nope")
	assert.ErrorIs(t, err, registry.ErrUnknownSession)
}

func TestHandle(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	spec := transport.LocalShell("bash")
	sid, err := f.d.Handle(ctx, UIEvent{Type: UIOpen, Spec: &spec})
	require.NoError(t, err)
	fake := <-f.opener.Opened()
	s, err := f.reg.Get(sid)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == session.StateActive }, 5*time.Second, 5*time.Millisecond)

	events := []UIEvent{
		{Type: UIPaste, SessionID: sid, Text: "echo "},
		{Type: UIKey, SessionID: sid, Key: "x"},
		{Type: UIKey, SessionID: sid, Key: "Enter"},
		{Type: UICommand, SessionID: sid, Text: "pwd"},
		{Type: UIResize, SessionID: sid, Rows: 50, Cols: 132},
	}
	for _, ev := range events {
		got, err := f.d.Handle(ctx, ev)
		require.NoError(t, err, ev.Type)
		assert.Equal(t, sid, got)
	}

	require.Eventually(t, func() bool { return fake.Written() == "echo x\rpwd\r" }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []transport.Size{{Rows: 50, Cols: 132}}, fake.Sizes())

	_, err = f.d.Handle(ctx, UIEvent{Type: UIClose, SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, session.StateClosed, s.State())

	_, err = f.d.Handle(ctx, UIEvent{Type: "wiggle", SessionID: sid})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, err = f.d.Handle(ctx, UIEvent{Type: UIOpen})
	assert.ErrorIs(t, err, transport.ErrInvalidSpec)
}

func TestAttachIndependentStreams(t *testing.T) {
	f := newFixture(t, Options{})
	sid, fake := f.open(t, transport.LocalShell("bash"))
	ctx := context.Background()

	fake.Emit("early ")
	first, err := f.d.Attach(ctx, sid)
	require.NoError(t, err)
	until(t, first, func(o Output) bool { return o.Chunk != nil })

	second, err := f.d.Attach(ctx, sid)
	require.NoError(t, err)
	fake.Emit("late")
	fake.Exit(0)

	a := until(t, first, Output.Terminal)
	b := until(t, second, Output.Terminal)

	assert.Equal(t, "late", plain(a))
	assert.Equal(t, "early late", plain(b), "a late consumer still sees earlier chunks")
	assert.True(t, b[len(b)-1].Terminal())
}

func TestAttachEndsWithContext(t *testing.T) {
	f := newFixture(t, Options{})
	sid, _ := f.open(t, transport.LocalShell("bash"))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.d.Attach(ctx, sid)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 5*time.Millisecond)
}

func TestReconnectLocal(t *testing.T) {
	f := newFixture(t, Options{})
	sid, fake := f.open(t, transport.LocalShell("htop"))
	ctx := context.Background()

	_, err := f.d.RequestReconnect(ctx, sid)
	assert.ErrorIs(t, err, session.ErrInvalidState, "live sessions are not reconnected")

	fake.Exit(0)
	old, err := f.reg.Get(sid)
	require.NoError(t, err)
	<-old.Done()

	next, err := f.d.RequestReconnect(ctx, sid)
	require.NoError(t, err)
	assert.NotEqual(t, sid, next)

	<-f.opener.Opened()
	specs := f.opener.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "htop", specs[1].Local.Command)
}

func TestReconnectGatedPerHost(t *testing.T) {
	gate := resilience.NewGate(resilience.Settings{
		Timeout:     time.Hour,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	f := newFixture(t, Options{Gate: gate})
	ctx := context.Background()
	f.opener.SetErr(&transport.ConnectError{Host: "db01", Port: 22, Stage: transport.StageDial, Err: errors.New("refused")})

	failed := func(sid id.SessionID) {
		t.Helper()
		s, err := f.reg.Get(sid)
		require.NoError(t, err)
		<-s.Done()
		require.Equal(t, session.StateFailed, s.State())
	}

	sid, err := f.d.RequestOpen(ctx, remoteSpec)
	require.NoError(t, err)
	failed(sid)

	retry, err := f.d.RequestReconnect(ctx, sid)
	require.NoError(t, err, "closed gate admits the first reconnect")
	failed(retry)

	require.Eventually(t, func() bool {
		return gate.States()["db01:22"] == resilience.StateOpen
	}, 5*time.Second, 5*time.Millisecond)

	_, err = f.d.RequestReconnect(ctx, retry)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	// another host is unaffected
	other := transport.Spec{Kind: transport.KindRemote, Remote: &transport.RemoteSpec{Host: "db02"}}
	sid2, err := f.d.RequestOpen(ctx, other)
	require.NoError(t, err)
	failed(sid2)

	_, err = f.d.RequestReconnect(ctx, sid2)
	assert.NoError(t, err)
}

func TestReconnectSuccessKeepsGateClosed(t *testing.T) {
	gate := GateFromConfig(config.ReconnectConfig{FailureThreshold: 1, Cooldown: time.Hour}, nil)
	f := newFixture(t, Options{Gate: gate})
	sid, fake := f.open(t, remoteSpec)

	fake.Drop(errors.New("broken pipe"))
	s, err := f.reg.Get(sid)
	require.NoError(t, err)
	<-s.Done()

	next, err := f.d.RequestReconnect(context.Background(), sid)
	require.NoError(t, err)
	<-f.opener.Opened()

	s2, err := f.reg.Get(next)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s2.State() == session.StateActive }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return gate.For("db01:22").Counts().TotalSuccesses == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, resilience.StateClosed, gate.States()["db01:22"])
}

func TestCloseEndsEvents(t *testing.T) {
	f := newFixture(t, Options{})
	f.open(t, transport.LocalShell("bash"))

	f.d.Close()
	f.d.Close()

	for range f.d.Events() {
	}
	_, err := f.d.RequestOpen(context.Background(), transport.LocalShell("bash"))
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}
