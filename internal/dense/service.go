package dense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/ragroute/internal/embedder"
	"github.com/dshills/ragroute/internal/storage"
	"github.com/dshills/ragroute/pkg/types"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Build failure reasons
const (
	ReasonDisabled    = "dense disabled"
	ReasonUnavailable = "index library not installed"
	ReasonNoChunks    = "no chunks"
	ReasonLockHeld    = "dense build already running"
	ReasonDimMismatch = "embedding dimensions differ"
)

const (
	// DefaultBatchSize is the number of chunks embedded per call during builds
	DefaultBatchSize = 64

	defaultLockTimeout = 30 * time.Second
)

// ErrNoStorageDir is returned when no storage directory is configured
var ErrNoStorageDir = errors.New("dense storage directory not configured")

// Config configures a Service
type Config struct {
	Dir         string // Directory holding the artifact pair
	Disabled    bool
	BatchSize   int           // Texts per embedding call during builds
	LockTimeout time.Duration // How long a build waits for the file lock
}

// Status describes the artifacts on disk
type Status struct {
	Enabled   bool      `json:"enabled"`
	Present   bool      `json:"present"`
	BuildID   string    `json:"build_id,omitempty"`
	Count     int       `json:"count"`
	Dimension int       `json:"dimension,omitempty"`
	ModTime   time.Time `json:"mod_time,omitzero"`
	Reason    string    `json:"reason,omitempty"` // Why the index is not usable, when it is not
}

// Service builds and queries the dense index. Queries are lock-free;
// builds are serialized in-process by a mutex and across processes by a
// file lock in the storage directory.
type Service struct {
	cfg    Config
	store  storage.ChunkStore
	emb    embedder.Embedder
	logger *slog.Logger

	buildMu sync.Mutex

	loadMu  sync.Mutex
	loaded  *Artifacts
	stamp   [2]fileStamp // index, mapping
	modTime time.Time
}

type fileStamp struct {
	mod  int64 // UnixNano
	size int64
}

// NewService creates a Service. A nil logger means slog.Default().
func NewService(cfg Config, store storage.ChunkStore, emb embedder.Embedder, logger *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, store: store, emb: emb, logger: logger}
}

// Enabled reports whether dense search is compiled in and not disabled
func (s *Service) Enabled() bool {
	return Available && !s.cfg.Disabled
}

// Build embeds the chunks of projectID (all chunks when empty) and replaces
// the artifact pair. Expected failures are reported in the result; only
// configuration and embedding provider errors are returned as errors.
func (s *Service) Build(ctx context.Context, projectID string) (types.BuildResult, error) {
	if !Available {
		return types.BuildFailed(ReasonUnavailable), nil
	}
	if s.cfg.Disabled {
		return types.BuildFailed(ReasonDisabled), nil
	}
	if s.cfg.Dir == "" {
		return types.BuildResult{}, ErrNoStorageDir
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return types.BuildResult{}, fmt.Errorf("create storage dir: %w", err)
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	lock := flock.New(filepath.Join(s.cfg.Dir, LockFile))
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil || !locked {
		if ctx.Err() != nil {
			return types.BuildResult{}, ctx.Err()
		}
		return types.BuildFailed(ReasonLockHeld), nil
	}
	defer func() { _ = lock.Unlock() }()

	chunks, err := s.store.FetchChunks(ctx, projectID)
	if err != nil {
		return types.BuildResult{}, fmt.Errorf("fetch chunks: %w", err)
	}
	if len(chunks) == 0 {
		return types.BuildFailed(ReasonNoChunks), nil
	}

	started := time.Now()
	var idx *FlatIndex
	ids := make([]int64, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vecs, err := s.emb.Embed(ctx, texts)
		if err != nil {
			return types.BuildResult{}, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}

		for i, v := range vecs {
			if idx == nil {
				idx = NewFlatIndex(len(v))
			}
			if err := idx.Add(v); err != nil {
				s.logger.Error("dense build aborted", "chunk_id", chunks[start+i].ID, "error", err)
				return types.BuildFailed(ReasonDimMismatch), nil
			}
			ids = append(ids, chunks[start+i].ID)
		}
		s.logger.Debug("dense build progress", "embedded", end, "total", len(chunks))
	}

	buildID := uuid.New()
	if err := writeArtifacts(s.cfg.Dir, buildID, idx, ids); err != nil {
		return types.BuildResult{}, fmt.Errorf("persist dense index: %w", err)
	}
	s.invalidate()

	s.logger.Info("dense index built",
		"build_id", buildID.String(),
		"rows", idx.Len(),
		"dimension", idx.Dim(),
		"project_id", projectID,
		"elapsed", time.Since(started))

	return types.BuildResult{OK: true, Count: idx.Len(), Dimension: idx.Dim()}, nil
}

// Search returns up to k chunk ids nearest to query, best first
func (s *Service) Search(ctx context.Context, query string, k int) ([]int64, error) {
	hits, err := s.SearchScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids, nil
}

// SearchScored returns up to k hits with their cosine similarity.
// A disabled, missing or inconsistent index yields an empty result, not an error.
func (s *Service) SearchScored(ctx context.Context, query string, k int) ([]types.VectorHit, error) {
	empty := []types.VectorHit{}
	if !s.Enabled() {
		return empty, nil
	}
	if s.cfg.Dir == "" {
		return nil, ErrNoStorageDir
	}
	if query == "" || k <= 0 {
		return empty, nil
	}

	art, err := s.load()
	if err != nil {
		s.logger.Debug("dense search skipped", "error", err)
		return empty, nil
	}

	vecs, err := s.emb.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		s.logger.Warn("dense query embedding failed", "error", err)
		return empty, nil
	}

	neighbors, err := art.Index.Search(vecs[0], k)
	if err != nil {
		s.logger.Warn("dense search failed", "error", err)
		return empty, nil
	}

	hits := make([]types.VectorHit, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Row < 0 || n.Row >= len(art.Mapping.Rows) {
			continue
		}
		hits = append(hits, types.VectorHit{
			ChunkID:    art.Mapping.Rows[n.Row].ChunkID,
			Similarity: n.Score,
		})
	}
	return hits, nil
}

// Status reports what is on disk without embedding anything
func (s *Service) Status() Status {
	st := Status{Enabled: s.Enabled()}
	switch {
	case !Available:
		st.Reason = ReasonUnavailable
		return st
	case s.cfg.Disabled:
		st.Reason = ReasonDisabled
		return st
	case s.cfg.Dir == "":
		st.Reason = ErrNoStorageDir.Error()
		return st
	}

	art, err := s.load()
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	st.Present = true
	st.BuildID = art.BuildID.String()
	st.Count = art.Index.Len()
	st.Dimension = art.Index.Dim()

	s.loadMu.Lock()
	st.ModTime = s.modTime
	s.loadMu.Unlock()
	return st
}

// load returns the cached artifacts, rereading them when either file changed
func (s *Service) load() (*Artifacts, error) {
	var stamp [2]fileStamp
	for i, name := range []string{IndexFile, MappingFile} {
		info, err := os.Stat(filepath.Join(s.cfg.Dir, name))
		if err != nil {
			s.invalidate()
			return nil, fmt.Errorf("%w: %v", ErrIndexAbsent, err)
		}
		stamp[i] = fileStamp{mod: info.ModTime().UnixNano(), size: info.Size()}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.loaded != nil && stamp == s.stamp {
		return s.loaded, nil
	}

	art, err := readArtifacts(s.cfg.Dir)
	if err != nil {
		s.loaded = nil
		return nil, err
	}
	s.loaded = art
	s.stamp = stamp
	s.modTime = time.Unix(0, stamp[0].mod)
	return art, nil
}

func (s *Service) invalidate() {
	s.loadMu.Lock()
	s.loaded = nil
	s.loadMu.Unlock()
}
