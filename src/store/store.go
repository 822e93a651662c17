// Package store owns the two bounded screenshot queues and their files.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shadow-ai/src/screenshot"
)

// MaxScreenshots bounds each queue; captures past it evict the oldest entry.
const MaxScreenshots = 4

var ErrEmptyCapture = errors.New("capture returned no image data")

// Kind selects one of the two queues.
type Kind int

const (
	Primary Kind = iota
	Extra
)

func (k Kind) String() string {
	if k == Extra {
		return "extra"
	}
	return "primary"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k Kind) dirName() string {
	if k == Extra {
		return "extra_screenshots"
	}
	return "screenshots"
}

// Record is a queued screenshot.
type Record struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Window is hidden around each capture so the overlay never captures itself.
type Window interface {
	Hide()
	Show()
}

// Store is safe for concurrent use.
type Store struct {
	dirs     [2]string
	capturer screenshot.Capturer
	window   Window

	hideDelay   time.Duration
	settleDelay time.Duration

	mu     sync.Mutex
	queues [2][]string
}

func defaultHideDelay() time.Duration {
	if runtime.GOOS == "windows" {
		return 500 * time.Millisecond
	}
	return 300 * time.Millisecond
}

// New creates the queue directories under dataDir and removes any PNG
// files left behind by a previous run.
func New(dataDir string, capturer screenshot.Capturer, window Window) (*Store, error) {
	s := &Store{
		capturer:    capturer,
		window:      window,
		hideDelay:   defaultHideDelay(),
		settleDelay: 200 * time.Millisecond,
	}
	for _, k := range []Kind{Primary, Extra} {
		dir := filepath.Join(dataDir, k.dirName())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", k, err)
		}
		s.dirs[k] = dir
		cleanDir(dir)
	}
	return s, nil
}

func cleanDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("store: failed to read %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			log.Printf("store: failed to delete stale screenshot %s: %v", p, err)
			continue
		}
		log.Printf("store: deleted stale screenshot %s", p)
	}
}

// SetDelays overrides the hide and settle delays around a capture.
func (s *Store) SetDelays(hide, settle time.Duration) {
	s.hideDelay = hide
	s.settleDelay = settle
}

// Dir returns the directory backing the given queue.
func (s *Store) Dir(k Kind) string { return s.dirs[k] }

// Capture hides the window, captures the screen and appends the new file
// to the queue of kind k, evicting the oldest entry past MaxScreenshots.
// The window is shown again after a short settle delay, even on error.
func (s *Store) Capture(ctx context.Context, k Kind) (string, error) {
	log.Printf("store: taking screenshot into %s queue", k)
	if s.window != nil {
		s.window.Hide()
		defer func() {
			sleep(context.Background(), s.settleDelay)
			s.window.Show()
		}()
	}
	if err := sleep(ctx, s.hideDelay); err != nil {
		return "", err
	}

	data, err := s.capturer.Capture()
	if err != nil {
		log.Printf("store: failed to capture screenshot: %v", err)
		return "", fmt.Errorf("capture screen: %w", err)
	}
	if len(data) == 0 {
		log.Printf("store: capture returned no data")
		return "", ErrEmptyCapture
	}

	path := filepath.Join(s.dirs[k], fmt.Sprintf("screenshot-%s.png", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("store: failed to write %s: %v", path, err)
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	log.Printf("store: screenshot saved to %s", path)

	s.mu.Lock()
	s.queues[k] = append(s.queues[k], path)
	var evicted []string
	for len(s.queues[k]) > MaxScreenshots {
		evicted = append(evicted, s.queues[k][0])
		s.queues[k] = s.queues[k][1:]
	}
	s.mu.Unlock()

	for _, old := range evicted {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			log.Printf("store: failed to delete evicted screenshot %s: %v", old, err)
			continue
		}
		log.Printf("store: evicted old screenshot %s", old)
	}
	return path, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Preview returns the file as a PNG data URL, or "" when it cannot be read.
func (s *Store) Preview(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("store: preview unavailable for %s: %v", path, err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// Delete removes a tracked screenshot from its queue and from disk. Paths
// that are in neither queue are left alone; a missing file is not an error.
func (s *Store) Delete(path string) error {
	_, err := s.Remove(path)
	return err
}

// Remove is Delete that also reports whether path was queued.
func (s *Store) Remove(path string) (bool, error) {
	s.mu.Lock()
	found := false
	for k := range s.queues {
		if i := indexOf(s.queues[k], path); i >= 0 {
			s.queues[k] = append(s.queues[k][:i:i], s.queues[k][i+1:]...)
			found = true
		}
	}
	s.mu.Unlock()
	if !found {
		log.Printf("store: delete ignored, %s is not queued", path)
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("store: failed to delete %s: %v", path, err)
		return true, fmt.Errorf("delete screenshot: %w", err)
	}
	log.Printf("store: deleted %s", path)
	return true, nil
}

// DeleteLast removes the newest entry of queue k and returns its path.
func (s *Store) DeleteLast(k Kind) (string, error) {
	s.mu.Lock()
	q := s.queues[k]
	if len(q) == 0 {
		s.mu.Unlock()
		return "", nil
	}
	path := q[len(q)-1]
	s.mu.Unlock()
	return path, s.Delete(path)
}

func indexOf(q []string, path string) int {
	for i, p := range q {
		if p == path {
			return i
		}
	}
	return -1
}

// ClearExtra empties the extra queue. Deletion errors are logged and skipped.
func (s *Store) ClearExtra() {
	s.clear(Extra)
}

// ClearAll empties both queues. Deletion errors are logged and skipped.
func (s *Store) ClearAll() {
	s.clear(Primary)
	s.clear(Extra)
	log.Printf("store: screenshot queues cleared")
}

func (s *Store) clear(k Kind) {
	s.mu.Lock()
	paths := s.queues[k]
	s.queues[k] = nil
	s.mu.Unlock()
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("store: failed to delete %s screenshot %s: %v", k, p, err)
		}
	}
}

// Queue returns a copy of the paths in queue k, oldest first.
func (s *Store) Queue(k Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queues[k]...)
}

// Existing returns the queued paths of kind k whose files still exist.
func (s *Store) Existing(k Kind) []string {
	var out []string
	for _, p := range s.Queue(k) {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		} else {
			log.Printf("store: skipping missing screenshot %s", p)
		}
	}
	return out
}

// Records lists both queues, primary first.
func (s *Store) Records() []Record {
	var out []Record
	for _, k := range []Kind{Primary, Extra} {
		for _, p := range s.Queue(k) {
			out = append(out, Record{Path: p, Kind: k})
		}
	}
	return out
}
