package server

import (
	"context"
	"sync"
	"time"

	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// SSEEvent is sent to connected clients.
type SSEEvent struct {
	Type          string      `json:"type"`
	Timestamp     time.Time   `json:"timestamp"`
	ContributorID string      `json:"contributor_id,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// Client is a connected SSE client.
type Client struct {
	ID          string
	Contributor string // empty = subscribe to all
	Events      chan SSEEvent
}

// Broker manages SSE client connections and broadcasts store events.
// It implements event.Hook so it plugs into the store's event bus.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *telemetry.Logger
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *telemetry.Logger) *Broker {
	return &Broker{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Subscribe adds a new SSE client. The returned Client's Events channel
// receives events until the context is cancelled.
func (b *Broker) Subscribe(ctx context.Context, clientID, contributor string) *Client {
	client := &Client{
		ID:          clientID,
		Contributor: contributor,
		Events:      make(chan SSEEvent, 64),
	}

	b.mu.Lock()
	b.clients[clientID] = client
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.clients, clientID)
		b.mu.Unlock()
		close(client.Events)
	}()

	return client
}

// Len returns the number of connected clients.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all matching clients. Events without a
// contributor go to everyone.
func (b *Broker) Broadcast(ev SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, client := range b.clients {
		if client.Contributor != "" && ev.ContributorID != "" && client.Contributor != ev.ContributorID {
			continue
		}
		select {
		case client.Events <- ev:
		default:
			// Drop if client buffer is full
			b.logger.Warn("Dropping SSE event for slow client", "client", client.ID)
		}
	}
}

// --- event.Hook interface ---

func (b *Broker) Name() string { return "sse-broker" }

func (b *Broker) Matches(_ event.EventType) bool { return true }

func (b *Broker) IsBlocking() bool { return false }

func (b *Broker) Handle(ev event.Event) error {
	contributor, _ := ev.Data["contributor_id"].(string)

	b.Broadcast(SSEEvent{
		Type:          string(ev.Type),
		Timestamp:     ev.Timestamp,
		ContributorID: contributor,
		Data:          ev.Data,
	})
	return nil
}
