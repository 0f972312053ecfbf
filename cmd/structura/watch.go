package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"structura/pkg/runner"
	"structura/pkg/script"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Re-run scenarios whenever their files change",
	RunE:  watchScenarios,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

const watchDebounce = 100 * time.Millisecond

// scenarioWatcher reports changed scenario files, debounced per file.
type scenarioWatcher struct {
	Changes <-chan []string

	changes chan []string
	quit    chan struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher
}

func newScenarioWatcher(dirs []string) (*scenarioWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// fsnotify does not recurse; add every directory below the roots.
	for _, root := range dirs {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return fw.Add(path)
			}
			if path == root {
				return fw.Add(filepath.Dir(path))
			}
			return nil
		})
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", root, err)
		}
	}
	ch := make(chan []string, 1)
	w := &scenarioWatcher{
		Changes: ch,
		changes: ch,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		watcher: fw,
	}
	go w.loop()
	return w, nil
}

func (w *scenarioWatcher) Close() {
	close(w.quit)
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

func (w *scenarioWatcher) loop() {
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
					continue
				}
			}
			if !script.IsScenarioFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			var ready []string
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= watchDebounce {
					ready = append(ready, file)
					delete(pending, file)
				}
			}
			if len(ready) > 0 {
				sort.Strings(ready)
				select {
				case w.changes <- ready:
				case <-w.quit:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("watch: %s", err)
		}
	}
}

func watchScenarios(cmd *cobra.Command, args []string) error {
	filter, err := compileFilter(cfg.Runner.Filter)
	if err != nil {
		return usageError(cmd, "%v", err)
	}
	dirs := scenarioPaths(args)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w, err := newScenarioWatcher(dirs)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	opts := runner.Options{
		Workers: cfg.WorkerCount(),
		Engine:  cfg.EngineOptions(),
		Timeout: cfg.Runner.Timeout,
		Filter:  filter,
	}
	// Run everything once, then only what changes.
	if all, err := script.Load(dirs...); err != nil {
		fmt.Fprintln(out, err)
	} else {
		rerun(ctx, out, all, opts)
	}
	fmt.Fprintf(out, "watching %v (Ctrl+C to stop)\n", dirs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case files := <-w.Changes:
			var changed []*script.Scenario
			for _, f := range files {
				s, err := script.LoadFile(f)
				if err != nil {
					// Removed or half written files show up here too.
					if !errors.Is(err, fs.ErrNotExist) {
						fmt.Fprintln(out, err)
					}
					continue
				}
				changed = append(changed, s)
			}
			if len(changed) > 0 {
				rerun(ctx, out, changed, opts)
			}
		}
	}
}

func rerun(ctx context.Context, out io.Writer, scenarios []*script.Scenario, opts runner.Options) {
	report, err := runner.Run(ctx, scenarios, opts)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
	_ = report.Print(out)
}
