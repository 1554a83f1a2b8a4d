// Package engine runs the motion judgment pipeline: normalize, classify or
// match, gate and score. One Engine is built at startup and shared by every
// request handler.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/detector"
	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/gate"
	"github.com/heungbuja/motionjudge/internal/judge"
	"github.com/heungbuja/motionjudge/internal/reference"
)

var (
	// ErrModelUnavailable is returned by the classifier path when no checkpoint is loaded.
	ErrModelUnavailable = fmt.Errorf("%w: classifier model not loaded", errs.ErrUnavailable)
	// ErrInsufficientFrames is returned when too few frames yield a pose.
	ErrInsufficientFrames = fmt.Errorf("%w: not enough frames with a detected pose", errs.ErrUnavailable)
	// ErrNoReferenceDir is returned when neither the request nor the engine names a reference directory.
	ErrNoReferenceDir = fmt.Errorf("%w: no reference directory configured", errs.ErrUnavailable)
	// ErrNoQuery is returned when a match request carries no sequence.
	ErrNoQuery = errs.Validationf("one of npz, frames or landmarks is required")
)

// Config holds the engine's collaborators and tuning. Zero values pick the
// defaults noted on each field.
type Config struct {
	// Model is the loaded classifier. Nil disables the classifier path.
	Model *classifier.Model
	// References caches reference sets. Nil creates a default-sized store.
	References *reference.Store
	// Gates holds per-action validators. Nil builds the default registry from GateThresholds.
	Gates *gate.Registry
	// Catalog maps action codes to labels. Nil uses action.Default().
	Catalog *action.Catalog
	// Detector extracts poses from images. Nil rejects image input.
	Detector detector.Detector

	// Thresholds defaults to judge.DefaultThresholds.
	Thresholds *judge.Thresholds
	// GateThresholds defaults to gate.DefaultThresholds.
	GateThresholds *gate.Thresholds
	// MinValidFrames defaults to judge.DefaultMinValidFrames.
	MinValidFrames int

	// ReferenceDir is the base reference directory. Relative request
	// directories resolve under it.
	ReferenceDir string

	Logger *slog.Logger
}

// Engine is safe for concurrent use. Everything it holds is read-only after
// New except the reference cache, which synchronizes itself, and the catalog,
// which is swapped atomically.
type Engine struct {
	model          *classifier.Model
	refs           *reference.Store
	gates          *gate.Registry
	catalog        atomic.Pointer[action.Catalog]
	detector       detector.Detector
	thresholds     judge.Thresholds
	minValidFrames int
	referenceDir   string
	logger         *slog.Logger
}

// New builds an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		model:          cfg.Model,
		refs:           cfg.References,
		gates:          cfg.Gates,
		detector:       cfg.Detector,
		thresholds:     judge.DefaultThresholds,
		minValidFrames: cfg.MinValidFrames,
		referenceDir:   cfg.ReferenceDir,
		logger:         cfg.Logger,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")

	if cfg.Thresholds != nil {
		e.thresholds = *cfg.Thresholds
	}
	if e.refs == nil {
		refs, err := reference.NewStore(reference.DefaultCacheSize, cfg.Logger)
		if err != nil {
			return nil, err
		}
		e.refs = refs
	}
	if e.gates == nil {
		th := gate.DefaultThresholds
		if cfg.GateThresholds != nil {
			th = *cfg.GateThresholds
		}
		e.gates = gate.NewDefaultRegistry(th)
	}
	e.SetCatalog(cfg.Catalog)
	if e.detector == nil {
		e.detector = detector.NopDetector{}
	}
	if e.minValidFrames <= 0 {
		e.minValidFrames = judge.DefaultMinValidFrames
	}
	if e.referenceDir != "" {
		dir, err := expandHome(e.referenceDir)
		if err != nil {
			return nil, err
		}
		e.referenceDir = dir
	}
	return e, nil
}

// Catalog returns the current action catalog.
func (e *Engine) Catalog() *action.Catalog { return e.catalog.Load() }

// SetCatalog replaces the action catalog for subsequent requests. Nil
// restores action.Default().
func (e *Engine) SetCatalog(c *action.Catalog) {
	if c == nil {
		c = action.Default()
	}
	e.catalog.Store(c)
}

// Model returns the loaded classifier or nil.
func (e *Engine) Model() *classifier.Model { return e.model }

// ReferenceDir returns the base reference directory.
func (e *Engine) ReferenceDir() string { return e.referenceDir }

// LoadReferences returns the cached reference set for dir, resolved like a
// request directory, filtered by actions.
func (e *Engine) LoadReferences(dir string, actions []string) ([]reference.Sequence, error) {
	resolved, err := e.resolveReferenceDir(dir)
	if err != nil {
		return nil, err
	}
	return e.refs.Load(resolved, actions)
}

// resolveReferenceDir picks the directory a request should load from. An
// empty dir means the base directory; a relative one is joined to it.
func (e *Engine) resolveReferenceDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		if e.referenceDir == "" {
			return "", ErrNoReferenceDir
		}
		return e.referenceDir, nil
	}
	dir, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(dir) || e.referenceDir == "" {
		return filepath.Clean(dir), nil
	}
	return filepath.Join(e.referenceDir, dir), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func newRequestID() string {
	return uuid.NewString()
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
