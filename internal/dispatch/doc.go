/*
Package dispatch routes presentation intents to sessions and fans their
output back in.

The Dispatcher is the only surface a presentation layer needs. It holds no
session state of its own: every call looks the session up in the registry by
id. Raw UI events (keys, pastes, resizes, open and close requests) go through
Handle; named keys such as "Enter", "C-c" or "Up" become the bytes a terminal
sends for them.

Output from every session opened through the Dispatcher is merged into one
stream, Events. Adapters serving several clients use Attach to get an
independent stream per consumer.

Reconnecting opens a fresh session with the spec of a finished one. Remote
targets pass through a per-host circuit breaker first, so a host that keeps
failing is left alone until its cooldown expires.
*/
package dispatch
