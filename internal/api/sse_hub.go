package api

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"factorcorr/internal"

	"github.com/gin-gonic/gin"
)

// TrainingEvent is one progress update streamed to training watchers
type TrainingEvent struct {
	Topic     string                 `json:"topic"`
	EventType string                 `json:"event_type"`
	Progress  float64                `json:"progress"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SSEHub fans training events out to Server-Sent Events clients grouped by topic
type SSEHub struct {
	clients   map[string]map[chan TrainingEvent]bool
	clientsMu sync.RWMutex
	broadcast chan TrainingEvent
	done      chan struct{}
	closeOnce sync.Once
	keepAlive time.Duration
	logger    *internal.Logger
}

// NewSSEHub creates a hub and starts its dispatch loop
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.NopLogger()
	}
	hub := &SSEHub{
		clients:   make(map[string]map[chan TrainingEvent]bool),
		broadcast: make(chan TrainingEvent, 100),
		done:      make(chan struct{}),
		keepAlive: 30 * time.Second,
		logger:    logger.WithField("component", "sse"),
	}

	go hub.run()
	return hub
}

// Close stops the dispatch loop
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			return

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.Topic] {
				select {
				case clientChan <- event:
				default:
					h.logger.Warn("client channel full for %s, skipping %s event", event.Topic, event.EventType)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast queues an event for every client of its topic; it never blocks
func (h *SSEHub) Broadcast(event TrainingEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event: %s", event.EventType)
	}
}

// Subscribe registers a buffered channel for a topic; call the returned func to leave.
// Registration is complete when Subscribe returns.
func (h *SSEHub) Subscribe(topic string) (<-chan TrainingEvent, func()) {
	ch := make(chan TrainingEvent, 10)
	h.clientsMu.Lock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[chan TrainingEvent]bool)
	}
	h.clients[topic][ch] = true
	h.logger.Debug("client registered for %s (total clients: %d)", topic, len(h.clients[topic]))
	h.clientsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.clientsMu.Lock()
			defer h.clientsMu.Unlock()
			clients := h.clients[topic]
			delete(clients, ch)
			close(ch)
			if len(clients) == 0 {
				delete(h.clients, topic)
			}
		})
	}
}

// HandleSSE streams events for the topic query parameter (default: the model name)
func (h *SSEHub) HandleSSE(defaultTopic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := c.DefaultQuery("topic", defaultTopic)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		events, leave := h.Subscribe(topic)
		defer leave()

		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-events:
				if !ok {
					return false
				}
				eventJSON, err := json.Marshal(event)
				if err != nil {
					h.logger.WithError(err).Warn("failed to marshal event")
					return true
				}
				c.SSEvent("training", string(eventJSON))
				return true

			case <-time.After(h.keepAlive):
				c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().Format(time.RFC3339)+`"}`)
				return true

			case <-ctx.Done():
				return false
			}
		})
	}
}

// GetClientCount returns the number of active clients for a topic
func (h *SSEHub) GetClientCount(topic string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[topic])
}
