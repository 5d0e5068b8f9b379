// Package ws streams terminal sessions over WebSocket.
//
// One connection can drive and watch any number of sessions. Clients send
// UI events (keys, pastes, commands, resizes, open, close, reconnect) as JSON
// frames and attach to the sessions they want to watch; attached sessions
// stream every event, replaying retained scrollback first.
//
// Message Types (Client → Server):
//   - attach / detach: start or stop streaming one session
//   - key, paste, command, resize, open, close, reconnect: UI events
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - welcome: carries the client id
//   - output: one session event (chunk, transition or overrun)
//   - ack: a request succeeded; open and reconnect carry the new session id
//   - error: a request failed
//   - pong
//
// Opening or reconnecting over a connection attaches to the new session.
// Input frames are rate limited per connection.
//
// Example Usage:
//
//	handler := ws.NewHandler(dispatcher, ws.Options{InputPerSecond: 2000})
//	router.GET("/ws", handler.HandleConnection)
package ws
