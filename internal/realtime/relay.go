package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"Go_Drop/internal/log"
)

const relayChannel = "godrop:events"

type relayMessage struct {
	UserID uint64          `json:"userId"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay fans events out through Redis pub/sub so every server
// process delivers them to its own clients.
type RedisRelay struct {
	rdb *redis.Client
	hub *Hub
}

// AttachRedisRelay routes the hub's Publish calls through Redis.
func AttachRedisRelay(hub *Hub, rdb *redis.Client) *RedisRelay {
	r := &RedisRelay{rdb: rdb, hub: hub}
	hub.setRelay(r.publish)
	return r
}

func (r *RedisRelay) publish(userID uint64, frame []byte) error {
	data, err := json.Marshal(relayMessage{UserID: userID, Frame: frame})
	if err != nil {
		return err
	}
	return r.rdb.Publish(context.Background(), relayChannel, data).Err()
}

// Run delivers relayed events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Infof("event relay subscribed to %s", relayChannel)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Warnf("event relay: bad payload: %v", err)
				continue
			}
			r.hub.Deliver(m.UserID, m.Frame)
		}
	}
}
