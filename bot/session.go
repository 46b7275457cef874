package bot

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Step is where a user is in a multi-message conversation.
type Step string

const (
	StepNone            Step = ""
	StepTaskTitle       Step = "task_title"
	StepTaskDescription Step = "task_description"
	StepTaskRemindAt    Step = "task_remind_at"
	StepJoinCode        Step = "join_code"
	StepTeamName        Step = "team_name"
	StepTeamNickname    Step = "team_nickname"
)

// Session holds the input collected so far in a conversation.
type Session struct {
	Step        Step    `json:"step"`
	Mode        string  `json:"mode,omitempty"`
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	TeamName    string  `json:"team_name,omitempty"`
}

// SessionStore keeps one Session per Telegram user. Get returns a zero
// Session for users without one.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, userID int64, s Session) error
	Delete(ctx context.Context, userID int64) error
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// MemoryStore is a process local SessionStore. Sessions are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[userID]
	if !ok {
		return Session{}, nil
	}
	if m.ttl > 0 && m.now().After(entry.expires) {
		delete(m.entries, userID)
		return Session{}, nil
	}
	return entry.session, nil
}

func (m *MemoryStore) Save(_ context.Context, userID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[userID] = memoryEntry{session: s, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, userID)
	return nil
}

// RedisStore keeps sessions in redis so they survive bot restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "tasker:bot:session:",
	}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err == redis.Nil {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, userID int64, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID), raw, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
