package imagesource

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"testing"
	"time"
)

func TestSource_WatchNoFiles(t *testing.T) {
	s, _ := New(Options{})
	if err := s.Watch(context.Background(), nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("Watch() = %v, want ErrNoFiles", err)
	}
}

func TestSource_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "albedo.png")
	writePNG(t, path, uniform(8, 8, color.RGBA{R: 10, A: 255}))

	s, _ := New(Options{})
	chain, err := s.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Bind(2, path, chain)
	s.Bind(5, path, chain)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(id int) {
			select {
			case changed <- id:
			default:
			}
		})
	}()

	updated := color.RGBA{R: 200, A: 255}
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	seen := map[int]bool{}
	for !seen[2] || !seen[5] {
		select {
		case id := <-changed:
			seen[id] = true
		case <-tick.C:
			// Rewrite until the watcher has picked the directory up.
			if len(seen) == 0 {
				writePNG(t, path, uniform(8, 8, updated))
			}
		case <-deadline:
			cancel()
			t.Fatalf("no reload observed, seen %v", seen)
		}
	}

	for _, id := range []int{2, 5} {
		c, ok := s.Chain(id)
		if !ok {
			t.Fatalf("Chain(%d) missing", id)
		}
		if got := c.Level(0).RGBAAt(0, 0); got != updated {
			t.Errorf("Chain(%d) pixel = %v, want %v", id, got, updated)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
