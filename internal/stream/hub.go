package stream

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "trails:"
	channelSuffix  = ":broadcast"
	channelPattern = channelPrefix + "*" + channelSuffix
	originSep      = '|'
)

// Hub fans topic messages out to in-process clients and, when Redis is
// configured, to every other instance subscribed to the same topics.
type Hub struct {
	id      string
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ready := make(chan struct{})
		go h.subscribeRedis(ready)
		<-ready
	}
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	h.deliver(topic, payload)

	if h.redis != nil {
		msg := make([]byte, 0, len(h.id)+1+len(payload))
		msg = append(msg, h.id...)
		msg = append(msg, originSep)
		msg = append(msg, payload...)
		if err := h.redis.Publish(context.Background(), redisChannel(topic), msg).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// deliver never blocks: a client whose buffer is full misses the message.
func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Close stops relaying Redis messages. Local delivery keeps working.
func (h *Hub) Close() error {
	h.mu.Lock()
	pubsub := h.pubsub
	h.pubsub = nil
	h.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	return pubsub.Close()
}

func (h *Hub) subscribeRedis(ready chan<- struct{}) {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
		_ = pubsub.Close()
		close(ready)
		return
	}

	h.mu.Lock()
	h.pubsub = pubsub
	h.mu.Unlock()

	ch := pubsub.Channel()
	close(ready)

	for msg := range ch {
		topic := topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		origin, payload := splitOrigin([]byte(msg.Payload))
		if origin == h.id {
			continue
		}
		h.deliver(topic, payload)
	}
}

func redisChannel(topic string) string {
	return channelPrefix + topic + channelSuffix
}

func topicFromChannel(ch string) string {
	// trails:{topic}:broadcast
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}

func splitOrigin(msg []byte) (string, []byte) {
	i := bytes.IndexByte(msg, originSep)
	if i < 0 {
		return "", msg
	}
	return string(msg[:i]), msg[i+1:]
}
