package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Event kinds pushed by the server over the /events stream.
const (
	EventShareRequested = "share.requested"
	EventShareResponded = "share.responded"
	EventFileChanged    = "file.changed"
)

// Event is one server push notification. FileID is empty for events that
// are not scoped to a single file.
type Event struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

// eventsBufferSize bounds how far the reader can run ahead of a slow
// consumer before pushes are dropped.
const eventsBufferSize = 16

// Events opens the server's websocket push stream and returns a channel of
// decoded events. The channel closes when ctx is canceled or the
// connection drops; consumers that want the stream back simply call Events
// again. Events the consumer is too slow to take are dropped — every event
// is only a refresh hint, never state.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	url := websocketURL(c.baseURL) + "/events"

	header := http.Header{}
	header.Set("User-Agent", userAgent)

	if c.creds != nil {
		if cred, ok := c.creds.Credential(); ok {
			header.Set("Authorization", "Bearer "+cred)
		}
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket hijacks the connection
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("api: connecting event stream: %w", err)
	}

	c.logger.Info("event stream connected")

	events := make(chan Event, eventsBufferSize)

	go c.readEvents(ctx, conn, events)

	return events, nil
}

// readEvents pumps decoded events from the websocket into the channel
// until the connection drops or ctx is canceled.
func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, events chan<- Event) {
	defer close(events)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("event stream closed",
					slog.String("error", err.Error()),
				)
			}

			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("discarding malformed event",
				slog.String("error", err.Error()),
			)

			continue
		}

		select {
		case events <- ev:
		default:
			c.logger.Debug("dropping event, consumer not keeping up",
				slog.String("type", ev.Type),
			)
		}
	}
}

// websocketURL rewrites an http(s) base URL to its ws(s) equivalent.
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
