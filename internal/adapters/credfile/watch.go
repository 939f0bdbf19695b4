package credfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/bnema/procure-cli/internal/domain"
)

// Watch delivers session changes made by other processes to fn. The
// watcher observes the parent directory because atomic writes replace the
// file by rename, which would silence a watch on the file itself.
//
// Own writes are recognized by content fingerprint and dropped, so only
// genuinely external mutations reach the callback. Consecutive events
// that resolve to the same content are collapsed into one delivery.
func (s *Store) Watch(ctx context.Context, fn func(*domain.Session)) (func(), error) {
	if fn == nil {
		return nil, errors.New("watch callback is nil")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create session watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch session directory: %w", err)
	}

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(stopCh)
			_ = watcher.Close()
		})
	}

	go s.watchLoop(ctx, watcher, stopCh, fn)

	return stop, nil
}

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}, fn func(*domain.Session)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("session watcher error")
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path || event.Op&relevantOps == 0 {
				continue
			}
			if session, deliver := s.resolveChange(); deliver {
				fn(session)
			}
		}
	}
}

// resolveChange reads the current record and decides whether the watcher
// should surface it. A state this process already accounts for, because
// it wrote it or already delivered it, is suppressed; anything else is an
// external change and becomes the new accounted-for state.
func (s *Store) resolveChange() (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", s.path).Msg("read session record after change")
		return nil, false
	}
	if errors.Is(err, os.ErrNotExist) {
		data = nil
	}

	mark := fingerprint(data)
	if s.known != nil && *s.known == mark {
		return nil, false
	}
	s.known = &mark

	if data == nil {
		return nil, true
	}
	session, ok := decodeRecord(data)
	if !ok {
		// A record another process corrupted counts as a clear.
		return nil, true
	}
	return session, true
}
