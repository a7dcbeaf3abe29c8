package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pipeline/internal/events"
)

// StreamEvents follows the job's event feed over a websocket, invoking fn for
// each event: stored history first, then live ones. It returns nil once the
// server closes the stream after the terminal event, or fn's error if fn
// aborts the stream.
func (c *Client) StreamEvents(ctx context.Context, jobID string, fn func(events.Event) error) error {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/v1/jobs/" + url.PathEscape(jobID) + "/events/stream"

	header := http.Header{}
	if c.userID != "" {
		header.Set("X-User-ID", c.userID)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if len(raw) > 0 {
				return decodeAPIError(resp.StatusCode, raw)
			}
		}
		return fmt.Errorf("client: connect stream: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// Tear the connection down when ctx expires so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: read stream: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
