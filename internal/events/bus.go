// Package events carries store change notifications to connected admin
// consoles.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Type string

const (
	AccountRegistered      Type = "account.registered"
	AccountDeleted         Type = "account.deleted"
	AccountPasswordChanged Type = "account.password_changed"
	ProfileSaved           Type = "profile.saved"
	ReviewStatusChanged    Type = "profile.review_status"
	ProjectStatusChanged   Type = "profile.project_status"
	DocumentsSaved         Type = "documents.saved"
	DocumentDeleted        Type = "documents.deleted"
)

type Event struct {
	Type   Type      `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe delivers events until ctx is done, then closes the channel.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

const subscriberBuffer = 64

// Local fans events out inside one process. Slow subscribers miss events
// rather than blocking publishers.
type Local struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewLocal() *Local {
	return &Local{subs: map[chan Event]struct{}{}}
}

func (l *Local) Publish(_ context.Context, e Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

const defaultChannel = "betclever:events"

// Redis publishes through redis pub/sub so every instance sees every change.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = defaultChannel
	}
	return &Redis{client: client, channel: channel}
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				default:
				}
			}
		}
	}()
	return out, nil
}
