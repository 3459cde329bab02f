package imagesource

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads bound files when they are written or recreated and calls
// onChange with each affected texture id, from the watching goroutine.
// Parent directories are watched, so files replaced by rename are followed.
// Only files bound when Watch starts are tracked.
// Watch blocks until ctx is done.
func (s *Source) Watch(ctx context.Context, onChange func(id int)) error {
	s.mu.Lock()
	dirs := make(map[string]struct{})
	for _, p := range s.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	s.mu.Unlock()
	if len(dirs) == 0 {
		return ErrNoFiles
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "imagesource: create watcher")
	}
	defer w.Close()

	for d := range dirs {
		if err := w.Add(d); err != nil {
			return errors.Wrapf(err, "imagesource: watch %s", d)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s.handleChange(filepath.Clean(ev.Name), onChange)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("imagesource: watcher error", "err", err)
		}
	}
}

func (s *Source) handleChange(path string, onChange func(id int)) {
	s.mu.Lock()
	bound := false
	for _, p := range s.paths {
		if p == path {
			bound = true
			break
		}
	}
	s.mu.Unlock()
	if !bound {
		return
	}

	ids, err := s.reload(path)
	if err != nil {
		// Partial writes fail to decode; a later event retries.
		s.log.Warn("imagesource: reload failed", "path", path, "err", err)
		return
	}
	slices.Sort(ids)
	s.log.Info("imagesource: reloaded", "path", path, "textures", ids)
	if onChange != nil {
		for _, id := range ids {
			onChange(id)
		}
	}
}
