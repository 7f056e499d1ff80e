package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/logger"
)

var (
	watchCreate   bool
	watchAppend   bool
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [index] [file]",
	Short: "Re-import a document file whenever it changes",
	Long: `Import a JSON or JSONL document file into an index, then watch it and
re-import on every change until interrupted.

By default each import replaces the index contents so removed documents
disappear from results. Use --append to only add and update documents.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchCreate, "create", false, "create the index if it does not exist")
	watchCmd.Flags().BoolVar(&watchAppend, "append", false, "add documents without clearing the index")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 250*time.Millisecond, "quiet period before re-importing")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	index, path := args[0], args[1]

	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	ix, err := indexerFor(cmd, e, index, watchCreate)
	if err != nil {
		return err
	}

	reimport := func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		docs, err := readDocuments(f)
		if err != nil {
			return err
		}
		result, err := importDocuments(cmd, ix, docs, !watchAppend)
		if err != nil {
			return err
		}
		return reportBatch(cmd, index, result)
	}

	if err := reimport(); err != nil {
		return err
	}

	w, err := newFileWatcher(path, watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", path)
	return w.Run(cmd.Context(), func() {
		if err := reimport(); err != nil {
			cmd.PrintErrf("re-import failed: %v\n", err)
		}
	})
}

// fileWatcher reports changes to a single file. The parent directory is
// watched so editors that save by rename are still seen.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	log      *zap.Logger
}

func newFileWatcher(path string, debounce time.Duration) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &fileWatcher{
		watcher:  w,
		path:     abs,
		debounce: debounce,
		log:      logger.Named("watch"),
	}, nil
}

// Run calls onChange after each burst of writes to the file settles. It
// blocks until ctx is cancelled or the watcher fails.
func (w *fileWatcher) Run(ctx context.Context, onChange func()) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			fire = nil
			onChange()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.isRelevant(event) {
				continue
			}
			w.log.Debug("file changed", zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil && !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("watching %s: %w", w.path, err)
			}
		}
	}
}

func (w *fileWatcher) isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Close stops the watcher.
func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}
