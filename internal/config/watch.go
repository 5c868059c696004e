// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func(*Config, error)
	done     chan struct{}
}

// Watch starts watching path. onChange receives the reloaded config, or the
// error that prevented loading it, on the watcher's goroutine. The watch
// stops when ctx is done or Close is called.
//
// The parent directory is watched rather than the file, so editors that
// replace the file by rename are followed.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w := &Watcher{
		fsw:      fsw,
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.onChange(nil, err)

		case <-timer.C:
			cfg, err := LoadFromPath(w.path)
			w.onChange(cfg, err)
		}
	}
}

// Close stops the watch and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
