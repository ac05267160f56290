package hardware

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads the description file into a Simulated platform when it
// changes on disk and reports each successful reload as a hardware-change
// event.
type Watcher struct {
	path     string
	platform *Simulated
	watcher  *fsnotify.Watcher
	events   chan struct{}
	debounce time.Duration
	logger   logger.Logger
	wg       sync.WaitGroup
}

func NewWatcher(path string, platform *Simulated, log logger.Logger) (*Watcher, error) {
	errFactory := errors.New()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrWatchFailed, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errFactory.Wrap(ErrWatchFailed, err)
	}

	// Watch the directory: editors replace files by rename.
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, errFactory.Wrap(ErrWatchFailed, err)
	}

	return &Watcher{
		path:     absPath,
		platform: platform,
		watcher:  fw,
		events:   make(chan struct{}, 1),
		debounce: defaultDebounce,
		logger:   log,
	}, nil
}

// Events delivers one value per applied reload. Bursts are coalesced.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start runs the watch loop until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	name := filepath.Base(w.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
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
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Platform description watcher error")
		}
	}
}

func (w *Watcher) reload() {
	desc, err := LoadDescription(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid platform description")
		return
	}

	w.platform.Replace(desc)
	w.logger.Info().Str("path", w.path).Msg("Platform description reloaded")

	select {
	case w.events <- struct{}{}:
	default:
	}
}
