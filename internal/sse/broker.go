package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/ppwm/matcher-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 16
)

const (
	EventConnected = "connected"
	EventPaired    = "paired"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Login  string
	Events chan Event
	Done   chan struct{}
}

// Broker fans pair events out to every open stream of a login. Events travel
// through Redis pub/sub so any instance can publish to any subscriber.
type Broker struct {
	redis     *redisclient.Client
	clients   map[string]map[*Client]struct{}
	listeners map[string]context.CancelFunc
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:     redisClient,
		clients:   make(map[string]map[*Client]struct{}),
		listeners: make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *Broker) Subscribe(login string) *Client {
	client := &Client{
		Login:  login,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[login] == nil {
		b.clients[login] = make(map[*Client]struct{})
		if b.redis != nil {
			listenCtx, stop := context.WithCancel(b.ctx)
			b.listeners[login] = stop
			go b.listen(listenCtx, login)
		}
	}
	b.clients[login][client] = struct{}{}
	count := len(b.clients[login])
	b.mu.Unlock()

	log.Debug().
		Str("login", login).
		Int("clientCount", count).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.Login]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Done)
	if len(clients) == 0 {
		delete(b.clients, client.Login)
		if stop, ok := b.listeners[client.Login]; ok {
			stop()
			delete(b.listeners, client.Login)
		}
	}

	log.Debug().
		Str("login", client.Login).
		Int("clientCount", len(clients)).
		Msg("sse client unsubscribed")
}

// Publish sends event to every stream of login, on this and other instances.
// Without Redis it reaches this instance's streams only.
func (b *Broker) Publish(ctx context.Context, login string, event Event) error {
	if b.redis == nil {
		b.broadcast(login, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.PairChannel(login), data).Err()
}

func (b *Broker) listen(ctx context.Context, login string) {
	channel := redisclient.PairChannel(login)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(login, event)
		}
	}
}

func (b *Broker) broadcast(login string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[login] {
		select {
		case client.Events <- event:
		default:
			log.Warn().Str("login", login).Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]struct{})
	b.listeners = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(login string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[login])
}
