/*
Package session runs one terminal session over a transport.

# Overview

A Session opens its transport in the background, feeds output through a
stream.Reader and appends every chunk and lifecycle transition to one
sequenced log. Subscribers replay the retained log and then follow it; a
subscriber that falls behind the ring is sent a single EventOverrun and
resumes at the oldest retained entry.

Input is queued in submission order and written by one goroutine. Close
discards untransmitted input and returns once the session is terminal.

	s := session.New(sid, transport.LocalShell("bash"), dialer, session.Options{})
	s.Start()
	sub := s.Subscribe()
	_ = s.SendInput(ctx, []byte("ls\r"))
	for ev := range sub.Events() {
		...
	}

# Lifecycle

	Opening -> Active -> Closing -> Closed
	Opening -> Closing -> Closed
	Opening | Active -> Failed

# Shell integration

Shells that emit OSC 7 report their working directory, which Info exposes.
OSC 133 C and D marks attach an exit status to the command history entry
that was running. Both sequences stay in the scrollback untouched.
*/
package session
