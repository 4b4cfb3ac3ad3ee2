package main

import (
	"context"
	"time"

	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/project"
	"github.com/ritzau/hesiod/pkg/session"
	"github.com/ritzau/hesiod/pkg/watcher"
)

const (
	quietPeriod = 200 * time.Millisecond
	maxWait     = 2 * time.Second
)

// watchLoop reloads the project into the session whenever its file is
// saved with new contents, then re-evaluates
type watchLoop struct {
	path    string
	load    func() (*project.Project, error)
	session *session.Session
	targets []string
	force   bool

	// report is called after each successful evaluation, if set
	report func(name string, res *session.Result)
}

func (w *watchLoop) run(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(w.path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), quietPeriod, maxWait)
	debouncer.Start(ctx)

	detector := watcher.NewChangeDetector(w.path)
	// Prime with the contents that were loaded at startup
	if _, err := detector.Changed(); err != nil {
		logging.Warn("could not read project file", "path", w.path, "error", err)
	}

	for event := range debouncer.Output() {
		changed, err := detector.Changed()
		if err != nil {
			logging.Warn("project file unreadable, waiting for next save", "path", w.path, "error", err)
			continue
		}
		if !changed {
			logging.Debug("project file saved without changes", "path", w.path)
			continue
		}

		p, err := w.load()
		if err != nil {
			logging.Error("failed to reload project", "path", w.path, "error", err)
			continue
		}
		logging.Info("project reloaded", "path", w.path, "saves", event.Count, "nodes", p.Graph.Len())
		w.session.Replace(p)

		if err := w.evaluate(ctx, p.Name); err != nil {
			logging.Error("evaluation failed", "error", err)
		}
	}
	return nil
}

func (w *watchLoop) evaluate(ctx context.Context, name string) error {
	res, err := w.session.Evaluate(ctx, w.targets, w.force)
	if err != nil {
		return err
	}
	if w.report != nil {
		w.report(name, res)
	}
	return nil
}
