package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/services"
)

type Replacer interface {
	Replace(specs map[domain.OperationID]domain.RateLimitSpec) error
}

// Watcher recarrega o arquivo de limites quando ele muda e publica o resultado,
// sobreposto aos limites base, no Replacer. Um arquivo inválido mantém os limites anteriores.
type Watcher struct {
	path     string
	base     map[domain.OperationID]domain.RateLimitSpec
	target   Replacer
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(path string, base map[domain.OperationID]domain.RateLimitSpec, target Replacer, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("rate limit file path is required")
	}
	if target == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		base:     base,
		target:   target,
		debounce: 100 * time.Millisecond,
		logger:   logger.With("component", "ratelimit-registry"),
	}, nil
}

// Reload lê o arquivo e publica os limites.
func (w *Watcher) Reload() error {
	overrides, err := Load(w.path)
	if err != nil {
		return err
	}
	merged := services.Merge(w.base, overrides)
	if err := w.target.Replace(merged); err != nil {
		return err
	}
	w.logger.Info("rate limits reloaded", "path", w.path, "operations", len(merged))
	return nil
}

// Watch bloqueia até o contexto ser cancelado. O diretório é observado, e não o
// arquivo, para sobreviver a editores que substituem o arquivo via rename.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch path: %w", err)
	}
	w.logger.Info("rate limit watcher started", "path", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Error("rate limit reload failed", "path", w.path, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rate limit watcher error", "error", err)
		}
	}
}
