package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// BookingsPubSub broadcasts booking status transitions so interested
// listeners (dashboards, audit tails) can react without polling.
type BookingsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewBookingsPubSub(rdb *redis.Client) *BookingsPubSub {
	return &BookingsPubSub{
		rdb:     rdb,
		channel: ChannelBookingsChanged(),
	}
}

type bookingChangedMsg struct {
	Type      string `json:"type"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	TsUnix    int64  `json:"ts_unix"`
}

func encodeBookingChanged(bookingID, status string) []byte {
	b, _ := json.Marshal(bookingChangedMsg{
		Type:      "booking_changed",
		BookingID: bookingID,
		Status:    status,
		TsUnix:    time.Now().Unix(),
	})
	return b
}

// dispatchBookingChanged hands a raw channel payload to the handler.
// Malformed payloads and messages without a booking id are dropped;
// a slow or broken publisher must not take the subscriber down.
func dispatchBookingChanged(ctx context.Context, payload string, handler func(ctx context.Context, bookingID, status string)) {
	var ev bookingChangedMsg
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.BookingID == "" {
		return
	}
	handler(ctx, ev.BookingID, ev.Status)
}

func (p *BookingsPubSub) PublishBookingChanged(ctx context.Context, bookingID, status string) error {
	return p.rdb.Publish(ctx, p.channel, encodeBookingChanged(bookingID, status)).Err()
}

// Subscribe blocks, invoking handler for every booking transition
// published on the channel, until ctx is cancelled.
func (p *BookingsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, bookingID, status string)) error {
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
			dispatchBookingChanged(ctx, m.Payload, handler)
		}
	}
}
