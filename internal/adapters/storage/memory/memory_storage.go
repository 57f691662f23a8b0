// Package memory disponibiliza um storage em memória, restrito a um único processo.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

type Storage struct {
	mu        sync.Mutex
	logs      map[string]*hitLog
	namespace string
	now       func() time.Time
}

var _ ports.CounterStore = (*Storage)(nil)

// hitLog guarda os hits de uma chave em ordem e a maior janela já usada com ela.
// Nada mais novo que essa janela é descartado.
type hitLog struct {
	hits   []time.Time
	window time.Duration
}

func (l *hitLog) widen(interval time.Duration) {
	if interval > l.window {
		l.window = interval
	}
}

// prune descarta os hits fora da maior janela.
func (l *hitLog) prune(now time.Time) {
	l.hits = l.hits[l.since(now.Add(-l.window)):]
}

// since devolve o índice do primeiro hit em ou após cutoff.
func (l *hitLog) since(cutoff time.Time) int {
	return sort.Search(len(l.hits), func(i int) bool { return !l.hits[i].Before(cutoff) })
}

type Option func(*Storage)

func WithNamespace(namespace string) Option {
	return func(s *Storage) {
		if namespace = strings.TrimSpace(namespace); namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithClock troca a fonte de tempo; usado em testes.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		logs:      make(map[string]*hitLog),
		namespace: domain.DefaultNamespace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Increment(ctx context.Context, key string, interval time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(key)
	log, ok := s.logs[k]
	if !ok {
		log = &hitLog{}
		s.logs[k] = log
	}
	now := s.now()
	log.widen(interval)
	log.prune(now)
	log.hits = append(log.hits, now)
	return nil
}

func (s *Storage) Exceeded(ctx context.Context, key string, threshold int, interval time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(key)
	log, ok := s.logs[k]
	if !ok {
		return false, nil
	}

	now := s.now()
	log.widen(interval)
	log.prune(now)
	if len(log.hits) == 0 {
		delete(s.logs, k)
		return false, nil
	}

	// hits são sempre anexados em ordem, então basta achar o primeiro dentro da janela.
	count := len(log.hits) - log.since(now.Add(-interval))
	return count > threshold, nil
}

// Keys lista as chaves (com namespace) que ainda possuem hits.
func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.logs))
	for k := range s.logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = make(map[string]*hitLog)
	return nil
}

func (s *Storage) key(key string) string {
	return s.namespace + ":" + key
}
