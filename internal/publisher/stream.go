// Package publisher pushes applied high-confidence recommendations onto a
// capped Redis stream for downstream consumers (alerting, dashboards).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sharpline/internal/models"
)

const defaultStream = "recommendations:stream"

// StreamPublisher writes one entry per applied recommendation. The stream
// is trimmed approximately to maxLen so an unread consumer never grows it
// unbounded.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = defaultStream
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *StreamPublisher) PublishRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if p == nil || p.client == nil || rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"recommendation": string(payload),
			"game_id":        rec.GameID,
			"market_type":    rec.MarketType,
			"side":           rec.Side,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", p.stream, err)
	}
	return nil
}
