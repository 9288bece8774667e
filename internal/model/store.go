package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/metrics"
)

// Store loads, validates and memoizes classifier bundles by risk type.
// It is the single source of truth for whether a model is ready to
// serve. Bundles live until evicted; a failed load caches nothing.
//
// Concurrent first-time loads of the same risk type are collapsed into
// one disk read via singleflight; loads of different risk types never
// serialize against each other. Reads of a cached bundle take only the
// read lock.
type Store struct {
	cfg domain.ModelsConfig

	mu      sync.RWMutex
	bundles map[domain.RiskType]*Bundle
	// gens is bumped per key on eviction so that an in-flight load
	// started before the evict cannot install its stale bundle.
	gens  map[domain.RiskType]uint64
	group singleflight.Group

	// load points at loadFromDisk; swappable in tests.
	load func(domain.RiskType) (*Bundle, error)
}

// NewStore creates an empty model store for the configured artifacts.
func NewStore(cfg domain.ModelsConfig) *Store {
	s := &Store{
		cfg:     cfg,
		bundles: make(map[domain.RiskType]*Bundle),
		gens:    make(map[domain.RiskType]uint64),
	}
	s.load = s.loadFromDisk
	return s
}

// Get returns the cached bundle for a risk type, loading it on first
// use. Repeated calls return the identical bundle without touching the
// artifact store.
func (s *Store) Get(ctx context.Context, rt domain.RiskType) (*Bundle, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownRiskType, rt, domain.RiskTypes)
	}

	s.mu.RLock()
	b := s.bundles[rt]
	s.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	return s.Load(ctx, rt)
}

// Load reads and caches the artifact for a risk type. At most one load
// per key is in flight; every concurrent caller observes the single
// resulting bundle or the single resulting error.
func (s *Store) Load(ctx context.Context, rt domain.RiskType) (*Bundle, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownRiskType, rt, domain.RiskTypes)
	}

	v, err, _ := s.group.Do(string(rt), func() (interface{}, error) {
		// A concurrent caller may have installed the bundle while we
		// waited for the flight slot.
		s.mu.RLock()
		cached := s.bundles[rt]
		gen := s.gens[rt]
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		bundle, err := s.load(rt)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		// An evict that raced the disk read invalidates this bundle:
		// the artifact may have been replaced after the read started.
		// Serve the caller but leave the cache empty.
		if s.gens[rt] == gen {
			s.bundles[rt] = bundle
		}
		s.mu.Unlock()

		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

// LoadAll warms the cache for every risk type in fixed order. The
// first failure aborts the operation; partial warm-up is not a valid
// end state and the caller is expected to treat the error as fatal.
func (s *Store) LoadAll(ctx context.Context) error {
	for _, rt := range domain.RiskTypes {
		if _, err := s.Get(ctx, rt); err != nil {
			return fmt.Errorf("warm-up failed at %q: %w", rt, err)
		}
	}
	return nil
}

// Evict removes one cached bundle. Evicting a missing key is a no-op.
func (s *Store) Evict(rt domain.RiskType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bundles, rt)
	s.gens[rt]++
	s.group.Forget(string(rt))
	metrics.RecordModelEviction()
	slog.Info("model evicted", "risk_type", rt)
}

// EvictAll clears the cache.
func (s *Store) EvictAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range domain.RiskTypes {
		s.gens[rt]++
		s.group.Forget(string(rt))
	}
	s.bundles = make(map[domain.RiskType]*Bundle)
	slog.Info("model cache cleared")
}

// Cached returns a snapshot of the current cache contents. Mutating
// the returned map does not affect the store.
func (s *Store) Cached() map[domain.RiskType]*Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.RiskType]*Bundle, len(s.bundles))
	for rt, b := range s.bundles {
		out[rt] = b
	}
	return out
}

// IsCached reports whether a bundle is resident without loading.
func (s *Store) IsCached(rt domain.RiskType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bundles[rt]
	return ok
}

// ArtifactInfo describes one configured artifact for health/admin use.
type ArtifactInfo struct {
	RiskType  domain.RiskType `json:"riskType"`
	Path      string          `json:"path"`
	Exists    bool            `json:"exists"`
	SizeBytes int64           `json:"sizeBytes"`
	Cached    bool            `json:"cached"`
	Algorithm string          `json:"algorithm,omitempty"`
}

// Info reports the state of every configured artifact. It stats the
// filesystem but never triggers a load.
func (s *Store) Info() []ArtifactInfo {
	infos := make([]ArtifactInfo, 0, len(domain.RiskTypes))
	for _, rt := range domain.RiskTypes {
		info := ArtifactInfo{RiskType: rt, Cached: s.IsCached(rt)}

		path, err := s.cfg.ArtifactPath(rt)
		if err == nil {
			info.Path = path
			if st, err := os.Stat(path); err == nil {
				info.Exists = true
				info.SizeBytes = st.Size()
			}
		}

		if info.Cached {
			s.mu.RLock()
			if b := s.bundles[rt]; b != nil {
				info.Algorithm = b.Classifier.Algorithm()
			}
			s.mu.RUnlock()
		}

		infos = append(infos, info)
	}
	return infos
}

// loadFromDisk reads, decodes and normalizes one artifact. Disk reads
// happen outside the store lock; only the map insert is guarded.
func (s *Store) loadFromDisk(rt domain.RiskType) (*Bundle, error) {
	start := time.Now()

	path, err := s.cfg.ArtifactPath(rt)
	if err != nil {
		return nil, &LoadError{RiskType: rt, Err: err}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s (risk type %q)", ErrArtifactNotFound, path, rt)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{RiskType: rt, Err: err}
	}

	clf, scaler, err := decodeArtifact(data)
	if err != nil {
		return nil, &LoadError{RiskType: rt, Err: err}
	}

	bundle := &Bundle{
		RiskType:   rt,
		Classifier: clf,
		Scaler:     scaler,
		Path:       path,
		LoadedAt:   time.Now().UTC(),
	}

	// Sibling metadata is optional; absence is not an error, but a
	// present-and-malformed descriptor fails the load.
	metaPath := metadataPath(path)
	if metaData, err := os.ReadFile(metaPath); err == nil {
		var meta map[string]string
		if err := json.Unmarshal(metaData, &meta); err != nil {
			return nil, &LoadError{RiskType: rt, Err: fmt.Errorf("invalid metadata %s: %w", metaPath, err)}
		}
		bundle.Metadata = meta
	}

	metrics.RecordModelLoad(string(rt))
	slog.Info("model loaded",
		"risk_type", rt,
		"path", path,
		"algorithm", clf.Algorithm(),
		"scaler", scaler != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return bundle, nil
}
