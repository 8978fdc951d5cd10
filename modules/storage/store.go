// Package storage writes finished tickets to disk.
//
// Layout:
//
//	<base>/
//	├── 2025-01-15/
//	│   ├── frente_7501234567890_20250115_143000.jpg
//	│   ├── reverso_7501234567890_20250115_143000.jpg
//	│   ├── roi_7501234567890_20250115_143000.jpg
//	│   ├── metadata_7501234567890_20250115_143000.json
//	│   └── fallidas/
//	│       └── fallida_20250115_142951_123456_no_code.jpg
//	└── 2025-01-16/
//
// All files of one capture share the same "_N" suffix when a name is taken.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Store is safe for concurrent use; saves are serialized so that name
// collisions resolve deterministically.
type Store struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	currentDir string

	tickets     atomic.Uint64
	files       atomic.Uint64
	bytes       atomic.Uint64
	failed      atomic.Uint64
	errors      atomic.Uint64
	dirsRemoved atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New validates cfg and creates the base directory.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	s := &Store{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// prepareDir creates the directory for day t and returns its path.
func (s *Store) prepareDir(t time.Time) (string, error) {
	dir := filepath.Join(s.cfg.BaseDir, t.Format(dateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: prepare %s: %w", dir, err)
	}
	if mb, ok := freeMB(dir); ok && mb < s.cfg.MinFreeMB {
		slog.Warn("storage: low disk space", "dir", dir, "free_mb", mb, "min_free_mb", s.cfg.MinFreeMB)
	}
	s.currentDir = dir
	return dir, nil
}

// Save writes the images and the metadata document of b.
// Front and Back are required; ROI is optional.
func (s *Store) Save(ctx context.Context, b Bundle) (Receipt, error) {
	if b.Code == "" {
		s.errors.Add(1)
		return Receipt{}, ErrNoCode
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.save(ctx, b)
	if err != nil {
		s.errors.Add(1)
		slog.Error("storage: save failed", "code", b.Code, "error", err)
		return Receipt{}, err
	}

	s.tickets.Add(1)
	slog.Info("storage: ticket saved",
		"code", receipt.Code,
		"capture_id", receipt.CaptureID,
		"dir", receipt.Dir,
		"bytes", receipt.Bytes,
	)
	return receipt, nil
}

func (s *Store) save(ctx context.Context, b Bundle) (Receipt, error) {
	now := s.now()
	captured := b.CapturedAt
	if captured.IsZero() {
		captured = now
	}

	dir, err := s.prepareDir(now)
	if err != nil {
		return Receipt{}, err
	}

	images := []struct {
		kind    string
		pattern string
		frame   *framesupplier.Frame
	}{
		{KindFront, s.cfg.FrontPattern, b.Front},
		{KindBack, s.cfg.BackPattern, b.Back},
		{KindROI, s.cfg.ROIPattern, b.ROI},
	}

	ts := captured.Format(timestampLayout)
	bases := make(map[string]string, len(images)+1)
	names := make(map[string]string, len(images)+1)
	for _, img := range images {
		if img.frame == nil {
			if img.kind == KindROI {
				continue
			}
			return Receipt{}, fmt.Errorf("%w: %s", ErrEmptyImage, img.kind)
		}
		if !img.frame.Valid() {
			return Receipt{}, fmt.Errorf("%w: %s", ErrEmptyImage, img.kind)
		}
		names[img.kind] = expand(img.pattern, img.kind, b.Code, ts)
		bases[names[img.kind]] = s.cfg.Format
	}
	names[KindMetadata] = expand(s.cfg.MetadataPattern, KindMetadata, b.Code, ts)
	bases[names[KindMetadata]] = "json"

	suffix, err := resolve(dir, bases, s.cfg.Overwrite)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		CaptureID: uuid.NewString(),
		Code:      b.Code,
		Dir:       s.rel(dir),
	}
	// A ticket is stored whole or not at all.
	var written []string
	discard := func() {
		for _, p := range written {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				slog.Warn("storage: cannot remove partial file", "path", p, "error", err)
			}
		}
	}

	paths := make(map[string]string, len(images))
	for _, img := range images {
		if _, ok := names[img.kind]; !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			discard()
			return Receipt{}, err
		}
		path := filepath.Join(dir, names[img.kind]+suffix+"."+s.cfg.Format)
		n, err := s.writeImage(path, img.frame, s.cfg.JPEGQuality)
		if err != nil {
			discard()
			return Receipt{}, fmt.Errorf("storage: save %s image: %w", img.kind, err)
		}
		written = append(written, path)
		receipt.Bytes += n
		paths[img.kind] = s.rel(path)
		slog.Debug("storage: image saved", "kind", img.kind, "path", path, "kb", n/1024)
	}
	receipt.Front = paths[KindFront]
	receipt.Back = paths[KindBack]
	receipt.ROI = paths[KindROI]

	hostname, _ := os.Hostname()
	meta := Metadata{
		CaptureID:  receipt.CaptureID,
		Code:       b.Code,
		CapturedAt: captured,
		SavedAt:    now,
		Resolution: fmt.Sprintf("%dx%d", b.Back.Width, b.Back.Height),
		Images:     paths,
		Strategy:   b.Strategy,
		Confidence: b.Confidence,
		Variant:    b.Variant,
		Directory:  receipt.Dir,
		Hostname:   hostname,
		AppVersion: s.cfg.AppVersion,
		Notes:      "captured automatically",
	}
	metaPath := filepath.Join(dir, names[KindMetadata]+suffix+".json")
	n, err := s.writeJSON(metaPath, meta)
	if err != nil {
		discard()
		return Receipt{}, fmt.Errorf("storage: save metadata: %w", err)
	}
	receipt.Bytes += n
	s.files.Add(uint64(len(written) + 1))
	s.bytes.Add(uint64(receipt.Bytes))
	receipt.Metadata = s.rel(metaPath)
	receipt.SavedAt = now
	return receipt, nil
}

// SaveFailed keeps a frame that could not be processed. It returns the
// written path, or "" when failed-image saving is disabled.
func (s *Store) SaveFailed(f *framesupplier.Frame, reason string) (string, error) {
	if !s.cfg.SaveFailed {
		return "", nil
	}
	if f == nil || !f.Valid() {
		return "", ErrEmptyImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	day, err := s.prepareDir(now)
	if err != nil {
		s.errors.Add(1)
		return "", err
	}
	dir := filepath.Join(day, failedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.errors.Add(1)
		return "", fmt.Errorf("storage: prepare %s: %w", dir, err)
	}

	name := fmt.Sprintf("fallida_%s_%06d_%s.jpg",
		now.Format(timestampLayout), now.Nanosecond()/1000, sanitize(reason, 50))
	path := filepath.Join(dir, name)

	quality := failedQuality
	n, err := s.writeImage(path, f, quality)
	if err != nil {
		s.errors.Add(1)
		slog.Warn("storage: failed image not saved", "reason", reason, "error", err)
		return "", fmt.Errorf("storage: save failed image: %w", err)
	}
	s.files.Add(1)
	s.bytes.Add(uint64(n))
	s.failed.Add(1)
	slog.Debug("storage: failed image saved", "path", path, "reason", reason)
	return path, nil
}

// Cleanup removes date directories older than days. Directories whose name
// is not a date are left alone. It returns the number removed.
func (s *Store) Cleanup(days int) (int, error) {
	if days < 1 {
		return 0, fmt.Errorf("storage: days to keep must be >= 1, got %d", days)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: read %s: %w", s.cfg.BaseDir, err)
	}

	now := s.now()
	limit := now.AddDate(0, 0, -days)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, e.Name(), now.Location())
		if err != nil || !day.Before(limit) {
			continue
		}
		path := filepath.Join(s.cfg.BaseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("storage: cannot remove old directory", "dir", path, "error", err)
			continue
		}
		removed++
		slog.Info("storage: old directory removed", "dir", path)
	}

	s.dirsRemoved.Add(uint64(removed))
	if removed > 0 {
		slog.Info("storage: cleanup finished", "removed", removed, "days_kept", days)
	}
	return removed, nil
}

// Stats returns the running counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	dir := s.currentDir
	s.mu.Unlock()

	st := Stats{
		TicketsSaved: s.tickets.Load(),
		FilesSaved:   s.files.Load(),
		BytesSaved:   s.bytes.Load(),
		FailedSaved:  s.failed.Load(),
		Errors:       s.errors.Load(),
		CurrentDir:   dir,
		DirsRemoved:  s.dirsRemoved.Load(),
	}
	st.BytesPerFile = float64(st.BytesSaved) / float64(max(1, st.FilesSaved))
	return st
}

func (s *Store) rel(path string) string {
	r, err := filepath.Rel(s.cfg.BaseDir, path)
	if err != nil {
		return path
	}
	return r
}

// writeImage encodes f in the configured format and returns the file size.
func (s *Store) writeImage(path string, f *framesupplier.Frame, quality int) (int64, error) {
	format := s.cfg.Format
	if filepath.Ext(path) == ".jpg" {
		format = "jpg"
	}
	return s.writeFile(path, func(w io.Writer) error {
		img := f.Image()
		if format == "png" {
			enc := png.Encoder{CompressionLevel: png.BestCompression}
			return enc.Encode(w, img)
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	})
}

func (s *Store) writeJSON(path string, v any) (int64, error) {
	return s.writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeFile creates path, runs encode and returns the file size.
func (s *Store) writeFile(path string, encode func(io.Writer) error) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	if err := encode(file); err != nil {
		file.Close()
		os.Remove(path)
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
