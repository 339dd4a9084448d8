package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Device is one connected WebSocket session of a user.
type Device struct {
	ConnID      string    `json:"connId"`
	DeviceID    string    `json:"deviceId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Presence tracks which devices of a user are connected.
type Presence interface {
	Add(ctx context.Context, userID uint64, device Device) error
	Remove(ctx context.Context, userID uint64, connID string) error
	List(ctx context.Context, userID uint64) ([]Device, error)
}

// NewPresence picks the Redis registry when a client is available, so
// several server processes share one view.
func NewPresence(rdb *redis.Client) Presence {
	if rdb == nil {
		return NewMemoryPresence()
	}
	return NewRedisPresence(rdb)
}

type MemoryPresence struct {
	mu      sync.RWMutex
	devices map[uint64]map[string]Device
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{devices: make(map[uint64]map[string]Device)}
}

func (p *MemoryPresence) Add(_ context.Context, userID uint64, device Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	room, ok := p.devices[userID]
	if !ok {
		room = make(map[string]Device)
		p.devices[userID] = room
	}
	room[device.ConnID] = device
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, userID uint64, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	room := p.devices[userID]
	delete(room, connID)
	if len(room) == 0 {
		delete(p.devices, userID)
	}
	return nil
}

func (p *MemoryPresence) List(_ context.Context, userID uint64) ([]Device, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Device, 0, len(p.devices[userID]))
	for _, d := range p.devices[userID] {
		out = append(out, d)
	}
	sortDevices(out)
	return out, nil
}

// presenceTTL bounds how long a crashed process can leave stale entries.
const presenceTTL = 24 * time.Hour

// RedisPresence keeps one hash per user: field connId, value Device JSON.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func presenceKey(userID uint64) string {
	return "presence:" + strconv.FormatUint(userID, 10)
}

func (p *RedisPresence) Add(ctx context.Context, userID uint64, device Device) error {
	data, err := json.Marshal(device)
	if err != nil {
		return err
	}
	key := presenceKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, key, device.ConnID, data)
	pipe.Expire(ctx, key, presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Remove(ctx context.Context, userID uint64, connID string) error {
	return p.rdb.HDel(ctx, presenceKey(userID), connID).Err()
}

func (p *RedisPresence) List(ctx context.Context, userID uint64) ([]Device, error) {
	values, err := p.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(values))
	for _, raw := range values {
		var d Device
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	sortDevices(out)
	return out, nil
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].ConnectedAt.Equal(devices[j].ConnectedAt) {
			return devices[i].ConnID < devices[j].ConnID
		}
		return devices[i].ConnectedAt.Before(devices[j].ConnectedAt)
	})
}
