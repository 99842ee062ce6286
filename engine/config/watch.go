package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-renderer/engine/core"
)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	path     string
	onChange func(Config)

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Watch calls onChange with the reloaded config every time path is written or recreated.
// Configs that fail to load are logged and skipped. onChange runs on the watcher goroutine.
//
// The parent directory is watched rather than the file, since editors usually save by
// replacing the file.
func Watch(ctx context.Context, path string, onChange func(Config)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		err = fmt.Errorf("failed to create config watcher: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsWatch.Close()
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		err = fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
		core.LogError(err.Error())
		return nil, err
	}

	w := &Watcher{
		fsnotify: fsWatch,
		path:     abs,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start(ctx)
	core.LogDebug("watching config %s", abs)
	return w, nil
}

func (w *Watcher) start(ctx context.Context) {
	defer w.wg.Done()
	defer w.fsnotify.Close()

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("ignoring config change: %s", err)
				continue
			}
			core.LogInfo("config %s reloaded", w.path)
			w.onChange(cfg)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and waits for the goroutine to exit. It is safe to call twice.
func (w *Watcher) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}
