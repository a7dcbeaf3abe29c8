package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pipeline/internal/domain"
	"pipeline/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin; access control happens at the
	// gateway in front of this service.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	streamWriteTimeout = 10 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamPingInterval = 30 * time.Second
	terminalGrace      = 2 * time.Second
)

func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	items, err := a.Events.Read(job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: read events failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to read events")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobEventsStream upgrades to a websocket, replays the stored events and
// follows the live feed until the job reaches a terminal state or the client
// goes away.
func (a *App) JobEventsStream(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	stored, live, cancel, err := a.Events.Replay(job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: replay events failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to read events")
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("http: websocket upgrade failed")
		return
	}
	defer conn.Close()

	for _, e := range stored {
		if writeEvent(conn, e) != nil {
			return
		}
	}
	if hasTerminalEvent(stored) {
		closeStream(conn)
		return
	}

	// The terminal status may land in the store before its event reaches us;
	// when the job is already final, give the in-flight event a moment rather
	// than waiting forever.
	var grace <-chan time.Time
	if job.Status.Terminal() {
		grace = time.After(terminalGrace)
	}

	// Read pump: clients never send data frames, but reading is how gorilla
	// surfaces close frames and dead peers.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case e, open := <-live:
			if !open {
				return
			}
			if writeEvent(conn, e) != nil {
				return
			}
			if terminalEvent(e.Event) {
				closeStream(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		case <-grace:
			closeStream(conn)
			return
		case <-gone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(e)
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job reached a terminal state")
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

func hasTerminalEvent(stored []events.Event) bool {
	for _, e := range stored {
		if terminalEvent(e.Event) {
			return true
		}
	}
	return false
}

func terminalEvent(name string) bool {
	switch name {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}
