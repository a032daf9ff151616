// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, presence snapshots, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection and registers a
// new Client with the hub, which starts the pumps.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close()
	}
}

// PresenceHandler reports the live connection count and online users as JSON.
func (h *Hub) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	stats, err := h.Snapshot(ctx)
	if err != nil {
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.log.Warn("error writing presence response", zap.Error(err))
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus chat server is running!")
}

// TestPageHandler serves an HTML page for exercising the event protocol by
// hand: join as a user, open rooms and send direct or group messages.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Nexus Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 160px; padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
    </style>
</head>
<body>
    <h1>Nexus Chat Test</h1>

    <div class="row">
        <input type="text" id="userId" placeholder="your user id">
        <button onclick="connect()">Connect &amp; join</button>
        <button onclick="disconnect()">Disconnect</button>
    </div>
    <div class="row">
        <input type="text" id="to" placeholder="recipient user id">
        <input type="text" id="text" placeholder="message">
        <button onclick="sendDirect()">Send</button>
    </div>
    <div class="row">
        <input type="text" id="room" placeholder="room id">
        <button onclick="emit('joinRoom', val('room'))">Join room</button>
        <button onclick="emit('leaveRoom', val('room'))">Leave room</button>
        <input type="text" id="roomText" placeholder="group message">
        <button onclick="sendGroup()">Send to room</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');

        function val(id) { return document.getElementById(id).value.trim(); }

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            eventsDiv.appendChild(el);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function emit(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            const frame = JSON.stringify({ event: event, data: data });
            ws.send(frame);
            log('> ' + frame);
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { log('connected'); emit('join', val('userId')); };
            ws.onmessage = function(e) { log('< ' + e.data); };
            ws.onclose = function() { log('connection closed'); ws = null; };
            ws.onerror = function() { log('connection error'); };
        }

        function disconnect() { if (ws) ws.close(); }

        function sendDirect() {
            emit('sendMessage', {
                from: val('userId'), to: val('to'), message: val('text'),
                timestamp: new Date().toISOString()
            });
        }

        function sendGroup() {
            emit('sendGroupMessage', {
                roomId: val('room'), from: val('userId'), text: val('roomText'),
                timestamp: new Date().toISOString()
            });
        }
    </script>
</body>
</html>`
	_, _ = fmt.Fprint(w, html)
}
