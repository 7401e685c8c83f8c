// Package tail replays and follows instance log files. Offsets are byte
// positions into the log, recorded per instance in the session metadata, so
// a restored session resumes output exactly where the previous run stopped
// reading: no line is re-emitted and none is lost.
package tail

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Replay copies the log at path from offset to its current end into w,
// returning the new offset. A missing log file replays nothing.
func Replay(path string, offset int64, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log %s: %w", path, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return offset + n, fmt.Errorf("replay log %s: %w", path, err)
	}
	return offset + n, nil
}

// Follow replays the log from offset, then watches for appends and streams
// them into w until ctx is canceled. Returns the final offset.
func Follow(ctx context.Context, path string, offset int64, w io.Writer) (int64, error) {
	offset, err := Replay(path, offset, w)
	if err != nil {
		return offset, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return offset, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return offset, fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return offset, nil
		case event, ok := <-watcher.Events:
			if !ok {
				return offset, nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			offset, err = Replay(path, offset, w)
			if err != nil {
				return offset, err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return offset, nil
			}
			return offset, fmt.Errorf("watch %s: %w", path, err)
		}
	}
}
