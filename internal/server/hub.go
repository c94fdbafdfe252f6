// Package server coordinates connection registration, room events, and
// connection cleanup for RoomChat via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrHubClosed is returned when a connection is offered to a hub that is
// shutting down.
var ErrHubClosed = errors.New("hub is shut down")

// Hub owns the room registry and every live connection. All room events are
// handled one at a time on the goroutine running Run, which is what makes a
// join, send, or disconnect atomic with respect to other connections.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]struct{}
	registry   *Registry
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub with an empty registry sized from the active config.
func NewHub() *Hub {
	return NewHubWithRegistry(NewRegistry(CurrentConfig().HistoryLimit))
}

// NewHubWithRegistry creates a Hub that drives the given registry.
func NewHubWithRegistry(registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		registry:   registry,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// Register hands a new connection to the hub, which starts its pumps.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) submit(ev inboundEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) submitUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Run is the hub's event loop. It returns after Shutdown is called.
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
			h.addClient(client)
			h.startPumps(client)

		case client := <-h.unregister:
			h.handleDisconnect(client)

		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, count)
}

func (h *Hub) startPumps(client *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// dispatch runs one inbound event. A panic in a handler is logged and the
// connection stays usable.
func (h *Hub) dispatch(ev inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling %s for %s: %v", ev.event, ev.client.id, r)
		}
	}()

	if !h.clients[ev.client] {
		log.Printf("Dropping %s from unregistered client %s", ev.event, ev.client.id)
		return
	}

	switch ev.event {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(ev.data, &payload); err != nil {
			log.Printf("Invalid join_room data from %s: %v", ev.client.addr, err)
			return
		}
		h.handleJoin(ev.client, payload)

	case EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(ev.data, &payload); err != nil {
			log.Printf("Invalid send_message data from %s: %v", ev.client.addr, err)
			return
		}
		h.handleSend(ev.client, payload)

	default:
		log.Printf("Unknown event %q from %s; dropping", ev.event, ev.client.addr)
	}
}

func (h *Hub) handleJoin(client *Client, payload JoinRoomPayload) {
	if err := validateJoin(payload.Room, payload.Username); err != nil {
		log.Printf("Invalid join_room data from %s: %v", client.addr, err)
		return
	}

	if client.joined() && (client.room != payload.Room || client.username != payload.Username) {
		h.leaveRoom(client)
	}

	history, notice, err := h.registry.Join(payload.Room, payload.Username)
	if err != nil {
		log.Printf("Join failed for %s: %v", client.addr, err)
		return
	}

	h.attach(client, payload.Room)
	client.room = payload.Room
	client.username = payload.Username

	h.sendTo(client, EventMessageHistory, history)
	h.broadcastToRoom(payload.Room, EventReceiveMessage, notice)

	log.Printf("User %s joined room %s", payload.Username, payload.Room)
	log.Printf("Room %s users: %v", payload.Room, h.registry.Members(payload.Room))
}

func (h *Hub) handleSend(client *Client, payload SendMessagePayload) {
	msg, stored, err := h.registry.Post(payload.Room, payload.Username, payload.Content)
	if err != nil {
		log.Printf("Invalid send_message data from %s: %v", client.addr, err)
		return
	}

	h.broadcastToRoom(payload.Room, EventReceiveMessage, msg)
	if !stored {
		log.Printf("Message in unknown room %s by %s broadcast without history", payload.Room, payload.Username)
		return
	}
	log.Printf("Message sent in room %s by %s", payload.Room, payload.Username)
}

// handleDisconnect runs when a connection's read pump exits. It is safe to
// call for clients that never joined or were already dropped.
func (h *Hub) handleDisconnect(client *Client) {
	if client.joined() {
		h.leaveRoom(client)
	}
	h.detach(client)

	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, count)
}

// leaveRoom ends the client's current session and announces it to whoever
// is still in the room.
func (h *Hub) leaveRoom(client *Client) {
	room, username := client.room, client.username
	h.detach(client)
	client.room, client.username = "", ""

	notice, announced := h.registry.Leave(room, username)
	if announced {
		h.broadcastToRoom(room, EventReceiveMessage, notice)
	}

	log.Printf("User %s left room %s", username, room)
	log.Printf("Room %s users: %v", room, h.registry.Members(room))
}

func (h *Hub) attach(client *Client, room string) {
	conns, ok := h.rooms[room]
	if !ok {
		conns = make(map[*Client]struct{})
		h.rooms[room] = conns
	}
	conns[client] = struct{}{}
}

func (h *Hub) detach(client *Client) {
	conns, ok := h.rooms[client.room]
	if !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.rooms, client.room)
	}
}

// sendTo queues one event for a single client.
func (h *Hub) sendTo(client *Client, event string, payload any) {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("Error encoding %s for %s: %v", event, client.addr, err)
		return
	}
	if !h.safeSend(client, frame) {
		h.dropClient(client)
	}
}

// broadcastToRoom queues one event for every connection attached to room.
func (h *Hub) broadcastToRoom(room, event string, payload any) {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("Error encoding %s for room %s: %v", event, room, err)
		return
	}

	conns := h.rooms[room]
	var failed []*Client
	for client := range conns {
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		h.dropClient(client)
	}
}

// safeSend enqueues without blocking. Only the hub goroutine closes send
// channels, so a registered client's channel is always open here.
func (h *Hub) safeSend(client *Client, message []byte) bool {
	if !h.clients[client] || client.closed {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// dropClient disconnects a client whose queue is full. Its session is kept
// so the leave notice still goes out when the read pump unregisters.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	h.mutex.Unlock()

	h.detach(client)
	close(client.send)
	log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
		client.closed = true
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing client connection from %s: %v", client.addr, err)
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the event loop and waits for all client goroutines to
// finish, or returns context.DeadlineExceeded after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
