package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var presenceCtx = context.Background()

// PresenceTracker answers "is this user connected right now". The hub drives
// it on connect/disconnect; nothing is persisted and losing the state only
// shows a user as offline until they reconnect.
type PresenceTracker interface {
	Connect(userID uint, connectionID string)
	Disconnect(userID uint, connectionID string)
	IsOnline(userID uint) bool
}

// MemoryPresence is the single-instance tracker.
type MemoryPresence struct {
	mu    sync.RWMutex
	conns map[uint]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[uint]map[string]struct{})}
}

func (p *MemoryPresence) Connect(userID uint, connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] == nil {
		p.conns[userID] = make(map[string]struct{})
	}
	p.conns[userID][connectionID] = struct{}{}
}

func (p *MemoryPresence) Disconnect(userID uint, connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.conns[userID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(p.conns, userID)
		}
	}
}

func (p *MemoryPresence) IsOnline(userID uint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// RedisPresence backs the tracker with a shared set per user so a
// multi-instance deployment sees connections from every node.
type RedisPresence struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{Client: client, TTL: 90 * time.Second}
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

func (p *RedisPresence) Connect(userID uint, connectionID string) {
	key := presenceKey(userID)
	if err := p.Client.SAdd(presenceCtx, key, connectionID).Err(); err != nil {
		log.Println("presence: failed to register connection:", err)
		return
	}
	p.Client.Expire(presenceCtx, key, p.TTL)
}

func (p *RedisPresence) Disconnect(userID uint, connectionID string) {
	if err := p.Client.SRem(presenceCtx, presenceKey(userID), connectionID).Err(); err != nil {
		log.Println("presence: failed to remove connection:", err)
	}
}

func (p *RedisPresence) IsOnline(userID uint) bool {
	n, err := p.Client.SCard(presenceCtx, presenceKey(userID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}
