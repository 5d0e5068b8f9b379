/*
Package resilience gates reconnect attempts to remote hosts.

# Overview

A Breaker counts failed session opens against one host. Once ReadyToTrip says
the host is failing, reconnects fail fast with ErrCircuitOpen until Timeout
elapses, then a limited number of trial attempts decide whether to close the
circuit again. Gate keeps one Breaker per host:port.

Session opens complete asynchronously, so the breaker works in two steps:

	gate := resilience.NewGate(resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	done, err := gate.For("db01:22").Allow()
	if err != nil {
		return err // ErrCircuitOpen or ErrTooManyRequests
	}
	// ... later, once the session reached Active or Failed
	done(state == session.StateActive)

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
