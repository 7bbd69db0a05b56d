package credential

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// watchDebounceInterval coalesces a burst of filesystem events (editors
// routinely write-then-rename several times for one logical save) into a
// single reload.
const watchDebounceInterval = 250 * time.Millisecond

// Watch starts an fsnotify watch on the Store's persisted file's parent
// directory and reloads the pool on any write/create/rename touching that
// file. It returns a stop function; the caller owns the returned
// goroutines' lifetime via ctx or stop, whichever comes first.
func (s *Store) Watch(ctx context.Context) (stop func(), err error) {
	path := s.persist.path
	dir := filepath.Dir(path)

	watcher, werr := fsnotify.NewWatcher()
	if werr != nil {
		return nil, werr
	}
	if werr := watcher.Add(dir); werr != nil {
		_ = watcher.Close()
		return nil, werr
	}

	watchCtx, cancel := context.WithCancel(ctx)
	reloadCh := make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.watchLoop(watchCtx, watcher, path, reloadCh)
	}()
	go func() {
		defer wg.Done()
		s.debounceReload(watchCtx, reloadCh)
	}()

	log.WithField("path", path).Info("credential store: watching for external changes")

	return func() {
		cancel()
		_ = watcher.Close()
		wg.Wait()
	}, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, reloadCh chan<- struct{}) {
	defer watcher.Close()
	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if evt.Name != path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case reloadCh <- struct{}{}:
			default:
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(werr).Warn("credential store: watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) debounceReload(ctx context.Context, reloadCh <-chan struct{}) {
	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-reloadCh:
			if timer == nil {
				timer = time.NewTimer(watchDebounceInterval)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounceInterval)
			}
		case <-timerCh:
			if err := s.Load(); err != nil {
				log.WithError(err).Warn("credential store: hot reload failed")
			} else {
				log.Info("credential store: reloaded pool after external change")
			}
			timer = nil
			timerCh = nil
		}
	}
}
