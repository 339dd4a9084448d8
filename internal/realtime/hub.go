package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Go_Drop/internal/log"
	"Go_Drop/internal/metrics"
)

// Hub groups the WebSocket clients of this process into one room per user.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uint64]map[*Client]struct{}
	presence Presence
	relay    func(userID uint64, frame []byte) error
}

func NewHub(presence Presence) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Hub{
		rooms:    make(map[uint64]map[*Client]struct{}),
		presence: presence,
	}
}

// Publish sends an event to every connected session of userID. With a
// relay attached the frame goes through the relay so other processes
// deliver it too.
func (h *Hub) Publish(userID uint64, event string, data interface{}) {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Errorf("encode %s event: %v", event, err)
		return
	}
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		err := relay(userID, frame)
		if err == nil {
			return
		}
		log.Warnf("relay %s event, delivering locally: %v", event, err)
	}
	h.Deliver(userID, frame)
}

// Deliver writes an encoded frame to the local clients of userID. A
// client whose send buffer is full is disconnected.
func (h *Hub) Deliver(userID uint64, frame []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[userID] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		log.Warnf("websocket client %s of user %d too slow, closing", c.id, userID)
		c.close()
	}
}

func (h *Hub) setRelay(relay func(uint64, []byte) error) {
	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
}

func (h *Hub) register(ctx context.Context, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
	metrics.OnlineConnections.Inc()

	device := Device{ConnID: c.id, DeviceID: c.deviceID, ConnectedAt: time.Now()}
	if err := h.presence.Add(ctx, c.userID, device); err != nil {
		log.Warnf("presence add for user %d: %v", c.userID, err)
	}
	h.Publish(c.userID, EventPresence, presenceChange{DeviceID: c.deviceID, Online: true})
}

func (h *Hub) unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	room := h.rooms[c.userID]
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
	h.mu.Unlock()
	metrics.OnlineConnections.Dec()

	if err := h.presence.Remove(ctx, c.userID, c.id); err != nil {
		log.Warnf("presence remove for user %d: %v", c.userID, err)
	}
	h.Publish(c.userID, EventPresence, presenceChange{DeviceID: c.deviceID, Online: false})
}

// Online lists the connected devices of a user.
func (h *Hub) Online(ctx context.Context, userID uint64) ([]Device, error) {
	return h.presence.List(ctx, userID)
}

// Close disconnects every local client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

type presenceChange struct {
	DeviceID string `json:"deviceId"`
	Online   bool   `json:"online"`
}
