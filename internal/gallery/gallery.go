// Package gallery holds the known identities and their feature vectors and
// answers nearest-identity queries against them.
package gallery

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

var (
	// ErrUnavailable is returned when the gallery artifact is missing, empty or unreadable.
	ErrUnavailable = errors.New("gallery unavailable")
	// ErrEmpty is returned when a gallery holds zero usable (identity, vector) pairs.
	ErrEmpty = errors.New("gallery empty")
	// ErrSourceUnavailable is returned when the reference image folder is missing.
	ErrSourceUnavailable = errors.New("gallery source unavailable")
)

const artifactVersion = 1

// artifact is the persisted form of a gallery: parallel lists of identities
// and vectors.
type artifact struct {
	Version    int
	Model      string
	Identities []string
	Vectors    [][]float32
	BuiltAt    time.Time
}

// Options configure how a gallery is searched.
type Options struct {
	Metric Metric
	Index  IndexKind
}

// Gallery is an immutable mapping from Identity to FeatureVector.
type Gallery struct {
	ids     []identity.Identity
	vectors [][]float32
	model   string
	builtAt time.Time
	metric  Metric
	index   index
}

// New builds a gallery from parallel lists. Pairs with an empty vector are
// dropped; zero usable pairs yield ErrEmpty.
func New(ids []identity.Identity, vectors [][]float32, opts Options) (*Gallery, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("gallery has %d identities but %d vectors", len(ids), len(vectors))
	}
	if opts.Metric == "" {
		opts.Metric = Euclidean
	}
	if opts.Index == "" {
		opts.Index = Linear
	}

	g := &Gallery{metric: opts.Metric}
	seen := make(map[identity.Identity]bool, len(ids))
	dim := 0
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("vector for %q has dimension %d, expected %d", ids[i], len(v), dim)
		}
		if seen[ids[i]] {
			return nil, fmt.Errorf("duplicate identity %q", ids[i])
		}
		seen[ids[i]] = true
		g.ids = append(g.ids, ids[i])
		g.vectors = append(g.vectors, v)
	}

	if len(g.ids) == 0 {
		return nil, ErrEmpty
	}

	g.index = newIndex(opts.Index, opts.Metric, g.vectors)
	return g, nil
}

// Load reads a gallery artifact written by Save.
func Load(path string, opts Options) (*Gallery, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found (run `attendance encode` first)", ErrUnavailable, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnavailable, path)
	}

	var a artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnavailable, path, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("%w: %s has unsupported version %d", ErrUnavailable, path, a.Version)
	}

	ids := make([]identity.Identity, len(a.Identities))
	for i, s := range a.Identities {
		ids[i] = identity.Identity(s)
	}

	g, err := New(ids, a.Vectors, opts)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	g.model = a.Model
	g.builtAt = a.BuiltAt
	return g, nil
}

// Save writes the gallery to path atomically (temp file + rename).
func (g *Gallery) Save(path string) error {
	a := artifact{
		Version:    artifactVersion,
		Model:      g.model,
		Identities: make([]string, len(g.ids)),
		Vectors:    g.vectors,
		BuiltAt:    g.builtAt,
	}
	for i, id := range g.ids {
		a.Identities[i] = string(id)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return fmt.Errorf("failed to encode gallery: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create gallery file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write gallery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close gallery file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move gallery file into place: %w", err)
	}
	return nil
}

// Match returns the identity whose vector is nearest to query together with
// that distance. The caller applies the acceptance threshold. A query that
// cannot be compared (wrong dimension) yields Unknown at infinite distance.
func (g *Gallery) Match(query []float32) (identity.Label, float64) {
	if len(query) != g.Dim() {
		return identity.Unknown, math.Inf(1)
	}
	i, d := g.index.Nearest(query)
	if i < 0 || math.IsInf(d, 1) {
		return identity.Unknown, math.Inf(1)
	}
	return identity.Identified(g.ids[i]), d
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.ids)
}

// Dim returns the feature vector dimension.
func (g *Gallery) Dim() int {
	return len(g.vectors[0])
}

// Metric returns the distance metric used by Match.
func (g *Gallery) Metric() Metric {
	return g.metric
}

// Model returns the encoder model recorded when the gallery was built.
func (g *Gallery) Model() string {
	return g.model
}

// BuiltAt returns the build time recorded in the artifact.
func (g *Gallery) BuiltAt() time.Time {
	return g.builtAt
}
