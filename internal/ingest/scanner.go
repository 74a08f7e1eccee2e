package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// FileResult is the per-file outcome of a scan or Accept call.
type FileResult struct {
	Path         string
	SHA256       string
	Deduplicated bool
	Err          string
}

// ScanStats aggregates one directory walk.
type ScanStats struct {
	Scanned      int
	Matched      int
	Succeeded    int
	Deduplicated int
	Failed       int
}

// Scanner walks directories for image files and remembers content hashes so
// the same screenshot is only handed to the pipeline once, regardless of
// path or how often it reappears. Safe for concurrent use; the watcher loop
// and a batch scan can share one instance.
type Scanner struct {
	exts   map[string]struct{}
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // sha256 hex -> first path
}

// NewScanner builds a scanner. nil exts means the default image extensions.
func NewScanner(exts map[string]struct{}, logger *slog.Logger) *Scanner {
	if exts == nil {
		exts = constants.AllowedExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		exts:   exts,
		logger: logger,
		seen:   make(map[string]string),
	}
}

// ScanDirectory walks root and returns a result per matched image file.
// Hidden entries are skipped, unreadable files are recorded as failures, and
// the walk continues past them. The walk stops early only when ctx ends.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) ([]FileResult, ScanStats, error) {
	var (
		results []FileResult
		stats   ScanStats
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			return nil
		}
		if hidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !allowedPath(path, s.exts) {
			return nil
		}
		stats.Matched++

		res, emit := s.Accept(path)
		results = append(results, res)
		switch {
		case res.Err != "":
			stats.Failed++
		case emit:
			stats.Succeeded++
		default:
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, err
	}

	s.logger.Info("ingest.scan.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)
	return results, stats, nil
}

// Accept hashes one file and reports whether it should be processed: true
// for readable content not seen before. Re-accepting the same bytes under
// any path is a dedup, not an error.
func (s *Scanner) Accept(path string) (FileResult, bool) {
	sum, err := hashFile(path)
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}, false
	}

	s.mu.Lock()
	first, dup := s.seen[sum]
	if !dup {
		s.seen[sum] = path
	}
	s.mu.Unlock()

	if dup {
		s.logger.Debug("ingest.dedup", "path", path, "first_seen", first)
		return FileResult{Path: path, SHA256: sum, Deduplicated: true}, false
	}
	return FileResult{Path: path, SHA256: sum}, true
}

// Forget drops a hash from the seen-set so the content can be processed
// again, for retry flows.
func (s *Scanner) Forget(sha256Hex string) {
	s.mu.Lock()
	delete(s.seen, sha256Hex)
	s.mu.Unlock()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
