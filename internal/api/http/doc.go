/*
Package http is the REST presentation adapter over the Dispatcher.

# Routes

	GET    /health                       engine status and counters
	GET    /metrics                      Prometheus exposition
	GET    /sessions                     list sessions (creation order)
	POST   /sessions                     open a session from a transport spec
	GET    /sessions/:id                 one session's info
	DELETE /sessions/:id                 close a session
	POST   /sessions/:id/input           raw input or a named key
	POST   /sessions/:id/command         a command line, recorded in history
	POST   /sessions/:id/resize          change the terminal size
	POST   /sessions/:id/reconnect       reopen a finished session's spec
	GET    /sessions/:id/scrollback      retained output as text, raw bytes or JSON
	GET    /sessions/:id/history         submitted commands

Scrollback can be compressed with ?compress=gzip or ?compress=zstd.

Engine errors map onto status codes: unknown sessions are 404, state
conflicts 409, backpressure and open circuits 503, invalid specs and keys 400.
*/
package http
