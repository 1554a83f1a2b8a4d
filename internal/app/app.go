// Package app wires the motion judgment service together: configuration,
// logging, the action store, the classifier, the pose detector, the engine and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/config"
	"github.com/heungbuja/motionjudge/internal/detector"
	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/reference"
	"github.com/heungbuja/motionjudge/internal/server"
	"github.com/heungbuja/motionjudge/internal/store"
)

// App owns every long-lived component of the service.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	store    *store.Store
	detector detector.Detector
	engine   *engine.Engine
	server   *server.Server
}

// New builds the application from cfg. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{config: cfg, logger: logger}

	if err := a.openStore(); err != nil {
		return nil, err
	}
	catalog, err := a.store.Actions().Catalog()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load action catalog: %w", err)
	}

	model, err := a.loadModel()
	if err != nil {
		a.Close()
		return nil, err
	}

	refs, err := reference.NewStore(cfg.References.CacheSize, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.detector = a.newDetector()

	judgeThresholds := cfg.JudgeThresholds()
	gateThresholds := cfg.GateThresholds()
	a.engine, err = engine.New(engine.Config{
		Model:          model,
		References:     refs,
		Catalog:        catalog,
		Detector:       a.detector,
		Thresholds:     &judgeThresholds,
		GateThresholds: &gateThresholds,
		MinValidFrames: cfg.Thresholds.Classifier.MinValidFrames,
		ReferenceDir:   cfg.References.Dir,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.server = server.New(server.Config{
		StaticDir:       cfg.Server.StaticDir,
		Engine:          a.engine,
		Store:           a.store,
		Logger:          logger,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	return a, nil
}

func (a *App) openStore() error {
	path, err := expandHome(a.config.Database.Path)
	if err != nil {
		return err
	}
	st, err := store.New(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := st.Actions().Seed(action.Defaults); err != nil {
		st.Close()
		return fmt.Errorf("seed actions: %w", err)
	}
	a.store = st
	a.logger.Info("store ready", "path", path)
	return nil
}

func (a *App) loadModel() (*classifier.Model, error) {
	path := a.config.Model.Checkpoint
	if path == "" {
		a.logger.Warn("no classifier checkpoint configured, classifier routes disabled")
		return nil, nil
	}
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	model, err := classifier.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	a.logger.Info("classifier loaded",
		"checkpoint", path,
		"classes", len(model.Labels()),
		"frames_per_sample", model.FramesPerSample(),
	)
	return model, nil
}

// newDetector starts the MediaPipe pose service when enabled. Image routes
// report the detector as unavailable when it is disabled or cannot start.
func (a *App) newDetector() detector.Detector {
	if !a.config.Detector.Enabled {
		return detector.NopDetector{}
	}
	d, err := detector.NewMediaPipeDetector(detectorConfig(a.config.Detector), a.logger)
	if err != nil {
		a.logger.Warn("pose detector not available, image routes disabled", "error", err)
		return detector.NopDetector{}
	}
	a.logger.Info("using MediaPipe pose detection")
	return d
}

func detectorConfig(c config.DetectorConfig) detector.Config {
	return detector.Config{
		MinConfidence:   c.MinConfidence,
		ModelComplexity: c.ModelComplexity,
		Script:          c.Script,
		Python:          c.Python,
		IdleTimeout:     c.IdleTimeout,
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx, a.config.Server.Addr)
}

// Close releases the detector and the store.
func (a *App) Close() error {
	var errs []error
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Engine returns the judgment engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Store returns the action and judgment store.
func (a *App) Store() *store.Store { return a.store }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// NewLogger builds the process logger. Text output is colored by tint.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// LoadCatalog returns the actions stored in the configured database, or the
// built-in catalog when the database has not been created yet.
func LoadCatalog(cfg *config.Config) (*action.Catalog, error) {
	path, err := expandHome(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return action.Default(), nil
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	catalog, err := st.Actions().Catalog()
	if err != nil {
		return nil, fmt.Errorf("load action catalog: %w", err)
	}
	if len(catalog.All()) == 0 {
		return action.Default(), nil
	}
	return catalog, nil
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
