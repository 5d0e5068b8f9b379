/*
Package transport moves bytes between a session and the process or remote
host behind it.

# Overview

A Transport is one live byte channel: a local child process on a
pseudo-terminal, or a shell channel on an SSH connection. Both variants share
one interface so the session layer never cares which it holds.

	t, err := dialer.Open(ctx, transport.Spec{
		Kind:  transport.KindLocal,
		Local: &transport.LocalSpec{Command: "/bin/bash"},
	})
	if err != nil {
		var spawn *transport.SpawnError
		errors.As(err, &spawn)
		...
	}
	for ev := range t.Events() {
		switch ev.Type {
		case transport.EventData:
			// ev.Data, in arrival order
		case transport.EventClosed, transport.EventError:
			// exactly one, always last
		}
	}

# Contract

  - Open either returns a working Transport or releases everything it acquired.
  - Events carries Data in arrival order followed by exactly one terminal event,
    then the channel is closed. The consumer must drain it.
  - Close is idempotent. The first call asks for a graceful exit (SIGHUP and
    SIGTERM locally, channel close remotely), waits the close grace, then forces
    termination.
  - A remote connection that drops ends with EventClosed and ReasonNetwork.
    Transports never reconnect on their own.
*/
package transport
