package tokenfile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var ErrEmptyToken = errors.New("tokenfile: empty token")

const debounceDelay = 250 * time.Millisecond

// Source holds the shared backend token. It is read from a file and the
// last good value is kept when the file is briefly empty or missing.
type Source struct {
	path string

	mu     sync.RWMutex
	cached string
}

func New(path string) *Source {
	return &Source{path: strings.TrimSpace(path)}
}

func (s *Source) Path() string { return s.path }

// Token returns the last loaded token.
func (s *Source) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// SetCached seeds the token, e.g. from a static config value, while the file
// is still watched for rotations.
func (s *Source) SetCached(token string) {
	s.mu.Lock()
	s.cached = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Reload reads the file. The returned boolean reports whether the token
// changed.
func (s *Source) Reload() (bool, error) {
	if s.path == "" {
		return false, errors.New("tokenfile: no file configured")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return false, ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.cached {
		return false, nil
	}
	s.cached = token
	return true, nil
}

// Watch reloads the token whenever the file changes until ctx is done.
// Editors replace files by rename, so removed paths are re-added.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("tokenfile: watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(debounceDelay)
				}
			case <-debounce.C:
				changed, err := s.Reload()
				if err != nil {
					slog.Error("tokenfile: reload failed", "path", s.path, "err", err)
					continue
				}
				if changed {
					slog.Info("tokenfile: shared token rotated", "path", s.path, "len", len(s.Token()))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("tokenfile: watch error", "err", err)
			}
		}
	}()
	return nil
}
