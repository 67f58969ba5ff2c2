// README: Tracking store: Redis Pub/Sub relay so topics span instances.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/types"
)

const topicKeyPrefix = "tracking:order:%s"

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func topicKey(orderID types.ID) string {
	return fmt.Sprintf(topicKeyPrefix, string(orderID))
}

// Publish pushes an event onto the order's channel. Every instance holding a
// local subscriber for the topic relays it into its hub.
func (s *Store) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, topicKey(ev.OrderID), payload).Err()
}

// Subscribe opens the raw pub/sub for one order topic. The caller owns the
// returned handle and must Close it when the last local viewer leaves.
func (s *Store) Subscribe(ctx context.Context, orderID types.ID) *redis.PubSub {
	return s.redis.Subscribe(ctx, topicKey(orderID))
}
