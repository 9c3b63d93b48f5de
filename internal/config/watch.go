package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"w0rd/internal/logging"
)

// Watch reloads the config file when it changes on disk and re-applies the
// logging options. Returns a stop function. Editors that replace the file
// (rename + create) are handled by watching the parent directory.
func Watch(path string, onReload func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	abs, _ := filepath.Abs(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logging.BootError("config reload failed: %v", err)
					continue
				}
				logging.Configure(logging.Options{
					Debug:      cfg.Logging.Debug,
					Level:      cfg.Logging.Level,
					JSONFormat: cfg.Logging.Format == "json",
					Categories: cfg.Logging.Categories,
				})
				logging.Boot("config reloaded from %s", path)
				if onReload != nil {
					onReload(cfg)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
