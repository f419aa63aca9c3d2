// Package server supervises live connections for the chat service via the
// Hub type: pump goroutines, bookkeeping and shutdown.
package server

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks every live WebSocket connection and owns its pump goroutines.
// Message fan-out belongs to the rooms; the hub only starts, counts and stops
// connections.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub. Call Run in its own goroutine before registering
// clients.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands c to the hub, which starts its pumps. It fails with
// ErrHubClosed once shutdown has begun.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// unregisterClient is called by a client's read pump on its way out.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.remove(c)
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop. It returns after Shutdown is called
// and every connection has been asked to close.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = struct{}{}
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client registered from %s. Total clients: %d", client, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Printf("Client unregistered from %s. Total clients: %d", client, clientCount)
}

// shutdownClients asks every connection to close with a going-away frame.
// Each read pump then runs the normal disconnect path.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops accepting clients, closes every connection and waits for
// all pump goroutines to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		log.Println("Hub shutdown timeout reached before the event loop stopped")
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-ctx.Done():
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
