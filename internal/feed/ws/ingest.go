// Package ws provides a WebSocket observation feed. It connects to a plain
// JSON WebSocket server and pushes decoded observations into a channel,
// reconnecting with exponential backoff.
//
// Each text frame carries one observation or an array of them:
//
//	{"token":"2885","exchange":"NSE","value":2451.35,"ts":"2024-01-15T09:15:01Z"}
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"rocengine/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WebSocket feed.
type Config struct {
	// URL of the observation server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest streams observations from a WebSocket server.
type Ingest struct {
	cfg Config

	// Optional hooks.
	OnReconnect func()
	OnConnected func(connected bool)
	OnMalformed func(err error)
}

// New creates a new Ingest. Returns an error if the URL is not a ws/wss URL.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url %q: scheme must be ws or wss", cfg.URL)
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects and streams observations into out. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, out chan<- model.Observation) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := ing.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[feed-ws] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, out chan<- model.Observation) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[feed-ws] connected to %s", ing.cfg.URL)
	ing.setConnected(true)
	defer ing.setConnected(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		batch, err := Decode(raw)
		if err != nil {
			log.Printf("[feed-ws] %v (raw: %s)", err, raw)
			if ing.OnMalformed != nil {
				ing.OnMalformed(err)
			}
			continue
		}

		// A full out stalls the read loop; the server side buffers.
		for _, obs := range batch {
			select {
			case out <- obs:
			case <-ctx.Done():
				return true, nil
			}
		}
	}
}

func (ing *Ingest) setConnected(v bool) {
	if ing.OnConnected != nil {
		ing.OnConnected(v)
	}
}

// ErrMalformed is returned by Decode for frames that carry no usable
// observation.
var ErrMalformed = errors.New("malformed observation frame")

// Decode parses a frame holding one observation or a JSON array of them.
// Observations without a timestamp are stamped with the receive time plus
// their position in the frame in nanoseconds, so batch order survives.
func Decode(raw []byte) ([]model.Observation, error) {
	raw = bytes.TrimSpace(raw)
	var batch []model.Observation
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		var obs model.Observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		batch = []model.Observation{obs}
	}

	now := time.Now().UTC()
	for i := range batch {
		if batch[i].Token == "" || batch[i].Exchange == "" {
			return nil, fmt.Errorf("%w: token and exchange are required", ErrMalformed)
		}
		if batch[i].TS.IsZero() {
			batch[i].TS = now.Add(time.Duration(i))
		}
	}
	return batch, nil
}
