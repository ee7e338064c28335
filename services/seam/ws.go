// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seam

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/seamkit/seamkit/services/seam/pipeline"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10

	// subscriberBuffer absorbs event bursts; a subscriber that falls this
	// far behind is dropped rather than blocking the pipeline.
	subscriberBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// eventHub fans pipeline progress events out to websocket subscribers.
//
// Thread Safety: All methods are safe for concurrent use.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan pipeline.Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan pipeline.Event]struct{})}
}

// publish is wired as the pipeline's OnEvent callback; it must not block.
func (h *eventHub) publish(ev pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch) // slow consumer
			close(ch)
		}
	}
}

func (h *eventHub) subscribe() chan pipeline.Event {
	ch := make(chan pipeline.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// HandleEvents handles GET /v1/seam/events (websocket).
//
// Description:
//
//	Streams run progress events as JSON frames. An optional run_id query
//	parameter filters to one run.
func (h *Handlers) HandleEvents(c *gin.Context) {
	runFilter := c.Query("run_id")

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return // Upgrade already wrote the error response
	}
	defer conn.Close()

	events := h.service.hub.subscribe()
	defer h.service.hub.unsubscribe(events)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	// Reader goroutine drains control frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if runFilter != "" && ev.RunID != runFilter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
