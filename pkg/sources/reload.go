package sources

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ReloadMessage is pushed by the backend when category data changes. An empty
// Categories list means everything.
type ReloadMessage struct {
	Type       string   `json:"type"`
	Categories []string `json:"categories"`
}

type ReloadWatcher struct {
	URL        string
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// ReloadURL turns the backend base URL into the reload stream URL.
func ReloadURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/") + ReloadsPath
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// WatchReloads keeps a subscription to the reload stream open until ctx is done,
// reconnecting with exponential backoff between 1s and 60s.
func WatchReloads(ctx context.Context, wsURL string, fn func(categories []string)) error {
	w := ReloadWatcher{URL: wsURL}
	return w.Run(ctx, fn)
}

func (w ReloadWatcher) Run(ctx context.Context, fn func(categories []string)) error {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	minBackoff, maxBackoff := w.MinBackoff, w.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = 1 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}

	backoff := minBackoff
	grow := func() {
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("[WS] Connecting to reload stream: %s", w.URL)
		c, _, err := dialer.DialContext(ctx, w.URL, nil)
		if err != nil {
			log.Printf("[WS] Dial error: %v. Retrying in %v...", err, backoff)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			grow()
			continue
		}

		connected := time.Now()
		w.read(ctx, c, fn)
		// Only a connection that stayed up earns a fresh backoff. One dropped
		// right after the upgrade keeps backing off like a failed dial.
		if time.Since(connected) > maxBackoff {
			backoff = minBackoff
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("[WS] Connection closed. Reconnecting in %v...", backoff)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		grow()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w ReloadWatcher) read(ctx context.Context, c *websocket.Conn, fn func([]string)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()
	defer func() { _ = c.Close() }()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[WS] Read error: %v. Reconnecting...", err)
			}
			return
		}
		var msg ReloadMessage
		if json.Unmarshal(message, &msg) != nil {
			continue
		}
		if msg.Type != "reload" {
			continue
		}
		log.Printf("[WS] Reload requested for %v", msg.Categories)
		fn(msg.Categories)
	}
}
