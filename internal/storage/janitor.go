package storage

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	bytesPerGB = int64(1024 * 1024 * 1024)

	checkInterval = 30 * time.Second
)

// Janitor enforces the storage cap across the public and evidence roots by
// deleting oldest files first. It is deliberately decoupled from any
// request path; it just ticks.
type Janitor struct {
	roots []string
	capGB int
	log   zerolog.Logger

	ticker *time.Ticker
	done   chan struct{}
}

// NewJanitor starts the cleanup loop over the given root directories.
func NewJanitor(roots []string, capGB int, logger zerolog.Logger) *Janitor {
	j := &Janitor{
		roots:  roots,
		capGB:  capGB,
		log:    logger,
		ticker: time.NewTicker(checkInterval),
		done:   make(chan struct{}),
	}
	go j.loop()
	return j
}

func (j *Janitor) loop() {
	for {
		select {
		case <-j.done:
			return
		case <-j.ticker.C:
			if err := j.EnforceCap(); err != nil {
				j.log.Error().Err(err).Msg("Storage cleanup failed")
			}
		}
	}
}

type agedFile struct {
	path    string
	modTime time.Time
	size    int64
}

// EnforceCap deletes oldest recordings until combined usage fits the cap.
// Sidecar JSON files follow their segment.
func (j *Janitor) EnforceCap() error {
	var files []agedFile
	var total int64

	for _, root := range j.roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			switch filepath.Ext(path) {
			case ".mp4", ".avi", ".enc":
			default:
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			files = append(files, agedFile{path: path, modTime: info.ModTime(), size: info.Size()})
			total += info.Size()
			return nil
		})
		if err != nil {
			return err
		}
	}

	capBytes := int64(j.capGB) * bytesPerGB
	if total <= capBytes {
		return nil
	}

	sort.Slice(files, func(i, k int) bool { return files[i].modTime.Before(files[k].modTime) })

	deleted := 0
	for _, f := range files {
		if total <= capBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			j.log.Warn().Err(err).Str("path", f.path).Msg("Failed to remove old recording")
			continue
		}
		// Best effort on the sidecar; it is meaningless without its video.
		sidecar := f.path[:len(f.path)-len(filepath.Ext(f.path))] + ".json"
		os.Remove(sidecar)

		total -= f.size
		deleted++
	}

	if deleted > 0 {
		j.log.Info().
			Int("deleted", deleted).
			Float64("now_gb", float64(total)/float64(bytesPerGB)).
			Int("cap_gb", j.capGB).
			Msg("Storage cleanup complete")
	}
	return nil
}

// Usage returns current usage in bytes across the managed roots.
func (j *Janitor) Usage() int64 {
	var total int64
	for _, root := range j.roots {
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
			return nil
		})
	}
	return total
}

// Stop halts the cleanup loop.
func (j *Janitor) Stop() {
	j.ticker.Stop()
	close(j.done)
}
