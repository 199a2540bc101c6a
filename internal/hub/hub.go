package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// ConnectionRoomPrefix prefixes the room owned by a single connection.
const ConnectionRoomPrefix = "conn:"

// ConnectionRoom returns the room unique to a connection.
func ConnectionRoom(clientID string) string {
	return ConnectionRoomPrefix + clientID
}

// Hub owns the room registry: which connections are live and which rooms
// each one has joined.
type Hub struct {
	clients     map[string]*Client             // clientID -> client
	rooms       map[string]map[string]*Client  // room -> clientID -> client
	memberships map[string]map[string]struct{} // clientID -> joined rooms
	register    chan *registration
	unregister  chan *Client
	broadcast   chan *RoomMessage
	done        chan struct{}
	mu          sync.RWMutex
	config      config.WebSocketConfig
}

type registration struct {
	client *Client
	rooms  []string
	ack    chan struct{}
}

// RoomMessage is one fan-out: Message reaches every member of any of Rooms
// at most once, skipping the Exclude connection.
type RoomMessage struct {
	Rooms   []string
	Message []byte
	Exclude string // Client ID to exclude
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
		register:    make(chan *registration),
		unregister:  make(chan *Client),
		broadcast:   make(chan *RoomMessage, 256),
		done:        make(chan struct{}),
		config:      cfg,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every live connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.ID] = reg.client
			h.memberships[reg.client.ID] = make(map[string]struct{})
			for _, room := range reg.rooms {
				h.joinLocked(reg.client, room)
			}
			h.mu.Unlock()
			close(reg.ack)
			l := log.L()
			l.Debug().Str(log.FieldConnID, reg.client.ID).Strs("rooms", reg.rooms).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *RoomMessage) {
	var slow []*Client

	h.mu.RLock()
	sent := make(map[string]struct{})
	for _, room := range msg.Rooms {
		for clientID, client := range h.rooms[room] {
			if clientID == msg.Exclude {
				continue
			}
			if _, ok := sent[clientID]; ok {
				continue
			}
			sent[clientID] = struct{}{}
			select {
			case client.Send <- msg.Message:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnID, client.ID).Msg("send buffer full, dropping client")
		go h.removeClient(client)
	}
}

// removeLocked tears down every membership of client and closes its queue.
func (h *Hub) removeLocked(client *Client) {
	for room := range h.memberships[client.ID] {
		if members, ok := h.rooms[room]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.memberships, client.ID)
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.removeLocked(client)
	}
}

// Register adds client and joins it to rooms atomically. It returns false
// when the hub has stopped.
func (h *Hub) Register(client *Client, rooms ...string) bool {
	reg := &registration{client: client, rooms: rooms, ack: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.done:
		return false
	}
	select {
	case <-reg.ack:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// JoinRoom adds a live client to room. Blank and placeholder names are
// ignored and reported as false.
func (h *Hub) JoinRoom(client *Client, room string) bool {
	if domain.IsBlankName(room) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	h.joinLocked(client, room)
	l := log.L()
	l.Info().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, room).Msg("client joined room")
	return true
}

func (h *Hub) joinLocked(client *Client, room string) {
	if domain.IsBlankName(room) {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	h.memberships[client.ID][room] = struct{}{}
}

// LeaveRoom removes client from room. The identity and connection rooms
// stay joined for the life of the connection. It reports whether a
// membership was removed.
func (h *Hub) LeaveRoom(client *Client, room string) bool {
	if domain.IsBlankName(room) || room == client.Identity.ID || room == ConnectionRoom(client.ID) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.memberships[client.ID][room]; !ok {
		return false
	}
	members := h.rooms[room]
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(h.memberships[client.ID], room)
	l := log.L()
	l.Info().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, room).Msg("client left room")
	return true
}

// BroadcastRaw sends raw bytes to all members of rooms. It never blocks on
// a stopped hub.
func (h *Hub) BroadcastRaw(rooms []string, data []byte, exclude string) {
	if len(rooms) == 0 {
		return
	}
	select {
	case h.broadcast <- &RoomMessage{Rooms: rooms, Message: data, Exclude: exclude}:
	case <-h.done:
	}
}

// RoomClientCount returns the number of local members of room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientRooms returns the rooms a client has joined, sorted.
func (h *Hub) ClientRooms(clientID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.memberships[clientID]))
	for room := range h.memberships[clientID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.Unregister(client)
}
