/*
Package registry owns every live session and supervises its lifecycle.

# Overview

The Manager mints session ids, constructs and starts sessions, and removes
them once they are finished. A session is reaped when it is terminal and its
subscribers have been handed the terminal transition, or when DrainTimeout
elapses first; lingering subscribers are cancelled at that point.

Ids come from a single monotonic ULID generator, so listings sort by creation
order and an id is never handed out twice.

# Example

	reg := registry.New(registry.Options{Opener: dialer, Logger: log})
	sid, err := reg.Create(transport.LocalShell("bash"))
	s, err := reg.Get(sid)
	defer reg.Shutdown(ctx)
*/
package registry
