// Package redis disponibiliza a implementação do storage baseada em Redis.
//
// Cada chave é um sorted set: o score é o instante do hit em milissegundos e o
// membro é um UUID, de modo que hits concorrentes no mesmo instante não se sobrescrevem.
// Ao lado do set fica "<chave>:window", a maior janela já vista para a chave, que
// limita a poda e o TTL.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

type Storage struct {
	client    redis.UniversalClient
	namespace string
	now       func() time.Time
	owned     bool
}

var _ ports.CounterStore = (*Storage)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	// Now substitui time.Now; usado em testes.
	Now func() time.Time
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := NewFromClient(client, cfg)
	s.owned = true
	return s, nil
}

// NewFromClient usa um cliente já configurado. O cliente continua sendo do chamador.
func NewFromClient(client redis.UniversalClient, cfg Config) *Storage {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Storage{client: client, namespace: namespace, now: now}
}

func (s *Storage) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// incrementScript grava o hit e poda o que ficou fora da maior janela já
// usada para a chave. A janela fica em KEYS[2] e só cresce.
var incrementScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local interval = tonumber(ARGV[3])
	local window = tonumber(redis.call("GET", KEYS[2]) or "0")
	if interval > window then
		window = interval
	end

	redis.call("ZADD", KEYS[1], now, ARGV[2])
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window - 1)
	redis.call("PEXPIRE", KEYS[1], window)
	redis.call("SET", KEYS[2], window, "PX", window)
	return window
`)

// exceededScript conta os hits dentro de ARGV[2] sem apagar nada que uma
// janela maior da mesma chave ainda precise.
var exceededScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local interval = tonumber(ARGV[2])
	local window = tonumber(redis.call("GET", KEYS[2]) or "0")
	if interval > window then
		window = interval
	end

	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window - 1)
	local count = redis.call("ZCOUNT", KEYS[1], now - interval, "+inf")
	if redis.call("EXISTS", KEYS[1]) == 1 then
		redis.call("PEXPIRE", KEYS[1], window)
		redis.call("SET", KEYS[2], window, "PX", window)
	else
		redis.call("DEL", KEYS[2])
	end
	return count
`)

func (s *Storage) Increment(ctx context.Context, key string, interval time.Duration) error {
	k := s.key(key)
	return incrementScript.Run(ctx, s.client, []string{k, windowKey(k)},
		s.now().UnixMilli(), uuid.NewString(), milliseconds(interval)).Err()
}

func (s *Storage) Exceeded(ctx context.Context, key string, threshold int, interval time.Duration) (bool, error) {
	k := s.key(key)
	count, err := exceededScript.Run(ctx, s.client, []string{k, windowKey(k)},
		s.now().UnixMilli(), milliseconds(interval)).Int64()
	if err != nil {
		return false, err
	}
	return count > int64(threshold), nil
}

func windowKey(k string) string {
	return k + ":window"
}

// milliseconds arredonda para cima; PEXPIRE 0 apagaria a chave.
func milliseconds(d time.Duration) int64 {
	ms := d.Milliseconds()
	if time.Duration(ms)*time.Millisecond < d {
		ms++
	}
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (s *Storage) key(key string) string {
	return s.namespace + ":" + key
}
