package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// readUntil accumulates Data events until out contains want
func readUntil(t *testing.T, tr Transport, want string) string {
	t.Helper()

	var out bytes.Buffer
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			require.True(t, ok, "events closed before %q, got %q", want, out.String())
			if ev.Terminal() {
				t.Fatalf("terminal event %v before %q, got %q", ev.Type, want, out.String())
			}
			out.Write(ev.Data)
			if bytes.Contains(out.Bytes(), []byte(want)) {
				return out.String()
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, out.String())
		}
	}
}

// drain reads to the end of the stream and returns the output and final event
func drain(t *testing.T, tr Transport) (string, Event) {
	t.Helper()

	var out bytes.Buffer
	var last Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				require.True(t, last.Terminal(), "stream ended without a terminal event")
				return out.String(), last
			}
			require.False(t, last.Terminal(), "event after terminal event")
			if ev.Type == EventData {
				out.Write(ev.Data)
			}
			last = ev
		case <-deadline:
			t.Fatalf("timed out draining, got %q", out.String())
		}
	}
}
