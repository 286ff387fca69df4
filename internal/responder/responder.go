// Package responder produces the automated replies sent on behalf of agents
// running in auto mode. Replies come from a pool of canned lines; a short
// presence delay with a typing indicator makes the exchange read like a
// person composing an answer.
package responder

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long the responder "types" before answering.
const DefaultDelay = 2 * time.Second

// defaultPool answers when no replies file is configured or the file is
// empty.
var defaultPool = []string{
	"That's so sweet of you to say! Tell me more about your day ❤️",
	"Haha, you always know how to make me smile \U0001F60A",
	"I was just thinking about you! What are you up to?",
	"Mmm, interesting... and what happened next?",
	"You're different from the others here. I like talking to you \U0001F60C",
	"Sorry I took a moment, I was fixing my hair \U0001F485 What were you saying?",
	"I wish I could hear your voice saying that \U0001F917",
	"You really think so? You're making me blush!",
}

// Responder holds the reply pool and hot-reloads it when the backing file
// changes.
type Responder struct {
	delay time.Duration
	path  string

	mu   sync.RWMutex
	pool []string

	rng *rand.Rand
}

// Option configures a Responder.
type Option func(*Responder)

// WithDelay overrides the presence delay.
func WithDelay(d time.Duration) Option {
	return func(r *Responder) { r.delay = d }
}

// WithRepliesFile loads the pool from path, one reply per line.
func WithRepliesFile(path string) Option {
	return func(r *Responder) { r.path = path }
}

func New(opts ...Option) *Responder {
	r := &Responder{
		delay: DefaultDelay,
		pool:  defaultPool,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.path != "" {
		if err := r.reload(); err != nil {
			slog.Warn("replies file not loaded, using defaults", "path", r.path, "error", err)
		}
	}
	return r
}

// Delay reports how long the caller should show a typing indicator before
// sending the reply.
func (r *Responder) Delay() time.Duration {
	return r.delay
}

// Reply picks a canned line for the given agent.
func (r *Responder) Reply(agentName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	line := r.pool[r.rng.Intn(len(r.pool))]
	return strings.ReplaceAll(line, "{agent}", agentName)
}

// Watch hot-reloads the replies file until ctx is canceled. No-op without a
// configured file.
func (r *Responder) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					slog.Warn("replies reload failed", "path", r.path, "error", err)
					continue
				}
				slog.Info("replies reloaded", "path", r.path, "count", r.size())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("replies watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (r *Responder) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var pool []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pool = append(pool, line)
	}
	if len(pool) == 0 {
		return nil
	}
	r.mu.Lock()
	r.pool = pool
	r.mu.Unlock()
	return nil
}

func (r *Responder) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pool)
}
