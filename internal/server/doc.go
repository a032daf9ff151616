// Package server implements the HTTP and WebSocket surface of the chat
// server.
//
// The Hub owns every piece of connection state: the presence registry and
// tracker, user bindings and room subscriptions. Client pumps decode frames
// and hand them to the Hub's Run goroutine, which applies them one at a
// time together with scheduled offline checks and envelopes relayed from
// other workers.
package server
