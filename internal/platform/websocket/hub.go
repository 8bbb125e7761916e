// Package websocket pushes front-desk events to connected desks. Each hospital
// account has its own channel; a desk only ever receives its hospital's
// events and may narrow them to a set of event types.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/auth"
)

// sendBuffer is the per-client queue length. Events for a client whose queue
// is full are dropped.
const sendBuffer = 64

// Event is a change notification sent to the desks of one hospital.
type Event struct {
	Type         string          `json:"type"`
	HospitalID   uuid.UUID       `json:"-"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event, encoding data as its payload.
func NewEvent(typ string, hospitalID uuid.UUID, resourceType, resourceID string, data interface{}) Event {
	ev := Event{
		Type:         typ,
		HospitalID:   hospitalID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// ClientMessage is an inbound message from a desk. Subscribing to no types
// at all means every type.
type ClientMessage struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

// Publisher delivers events after the change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Client is one connected desk.
type Client struct {
	ID         string
	HospitalID uuid.UUID
	Send       chan []byte

	mu    sync.RWMutex
	types map[string]struct{}
}

// NewClient returns a client that receives every event type of hospitalID.
func NewClient(hospitalID uuid.UUID) *Client {
	return &Client{
		ID:         uuid.New().String(),
		HospitalID: hospitalID,
		Send:       make(chan []byte, sendBuffer),
	}
}

func (c *Client) wants(typ string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return true
	}
	_, ok := c.types[typ]
	return ok
}

// Types returns the event types the client narrowed to, nil meaning all.
func (c *Client) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.types))
	for t := range c.types {
		out = append(out, t)
	}
	return out
}

// Hub tracks connected clients per hospital.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[client.HospitalID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[client.HospitalID] = set
	}
	set[client] = struct{}{}
}

// Unregister removes the client and closes its Send channel. Unregistering
// twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.HospitalID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.HospitalID)
	}
	close(client.Send)
}

// ProcessMessage applies a subscribe or unsubscribe message to the client's
// type filter. Unknown actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	client.mu.Lock()
	defer client.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		if client.types == nil {
			client.types = make(map[string]struct{}, len(msg.Types))
		}
		for _, t := range msg.Types {
			client.types[t] = struct{}{}
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(client.types, t)
		}
	}
}

// Publish sends the event to the hospital's clients that want its type.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.HospitalID == uuid.Nil {
		return apperr.Validation("event has no hospital")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap("encode event", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.HospitalID] {
		if !client.wants(event.Type) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("type", event.Type).Msg("client queue full, event dropped")
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// HospitalCount returns the number of clients connected for hospitalID.
func (h *Hub) HospitalCount(hospitalID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[hospitalID])
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts upgrades from the given browser origins. "*" allows any
// origin; requests without an Origin header are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect registers the connection under the caller's hospital and
// starts its read and write pumps.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	hospitalID := auth.HospitalIDFromContext(c.Request().Context())
	if hospitalID == uuid.Nil {
		return apperr.Unauthorized("")
	}
	// Registered before the handshake completes so no event published after
	// the client sees 101 is missed.
	client := NewClient(hospitalID)
	wsh.hub.Register(client)

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		wsh.hub.Unregister(client)
		return nil
	}
	wsh.hub.logger.Debug().Str("client_id", client.ID).Str("hospital_id", hospitalID.String()).Msg("desk connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
	ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
}
