package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// AreasPubSub announces occupancy changes to the live map UI.
type AreasPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewAreasPubSub(rdb *redis.Client) *AreasPubSub {
	return &AreasPubSub{
		rdb:     rdb,
		channel: ChannelAreasChanged(),
	}
}

type areaChangedMsg struct {
	Type   string `json:"type"`
	AreaID int64  `json:"area_id"`
	TsUnix int64  `json:"ts_unix"`
}

func (p *AreasPubSub) PublishAreaChanged(ctx context.Context, areaID int64) error {
	msg := areaChangedMsg{
		Type:   "area_changed",
		AreaID: areaID,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *AreasPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, areaID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev areaChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.AreaID != 0 {
				handler(ctx, ev.AreaID)
			}
		}
	}
}
