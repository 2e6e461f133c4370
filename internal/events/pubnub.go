package events

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNub pushes events to a channel the scanner and admin pages listen on.
type PubNub struct {
	channel string
	publish func(ctx context.Context, channel string, msg any) error
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	Channel      string
	// UserID identifies this server to PubNub.
	UserID string
}

func NewPubNub(c PubNubConfig) *PubNub {
	if c.UserID == "" {
		c.UserID = "theater-site"
	}
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(c.UserID))
	pnConfig.PublishKey = c.PublishKey
	pnConfig.SubscribeKey = c.SubscribeKey
	pnConfig.SecretKey = c.SecretKey

	pn := pubnub.NewPubNub(pnConfig)

	return &PubNub{
		channel: c.Channel,
		publish: func(ctx context.Context, channel string, msg any) error {
			_, st, err := pn.PublishWithContext(ctx).
				Channel(channel).
				Message(msg).
				Execute()
			if err != nil {
				return fmt.Errorf("events: pubnub publish (status %d): %w", st.StatusCode, err)
			}
			return nil
		},
	}
}

func (p *PubNub) Publish(ctx context.Context, e Event) error {
	return p.publish(ctx, p.channel, map[string]any{
		"type":       e.Type,
		"key":        e.Key,
		"occurredAt": e.OccurredAt,
		"data":       e.Data,
	})
}

func (p *PubNub) Close() error { return nil }
