package circularlog

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Follow watches path for writes and, on each write or create event, invokes
// onLine once with all bytes appended since the last read, starting from the
// current end of file. The bytes are passed as read; they are not split into
// lines. If the file shrinks below the remembered offset, a wrap is
// assumed and reading resumes from 0. Follow returns cleanly when ctx is
// done; callers derive ctx from signal.NotifyContext so SIGINT/SIGTERM end
// the follow cleanly.
func Follow(ctx context.Context, path string, onLine func([]byte)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("circularlog: follow: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("circularlog: follow: watch %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("circularlog: follow: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("circularlog: follow: stat %s: %w", path, err)
	}
	offset := info.Size()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("circularlog: follow: watcher error: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("circularlog: follow: stat %s: %w", path, err)
			}
			if info.Size() < offset {
				offset = 0 // wrap detected
			}

			chunk := make([]byte, info.Size()-offset)
			if len(chunk) > 0 {
				if _, err := f.ReadAt(chunk, offset); err != nil {
					return fmt.Errorf("circularlog: follow: read %s: %w", path, err)
				}
				offset = info.Size()
				onLine(chunk)
			}
		}
	}
}
