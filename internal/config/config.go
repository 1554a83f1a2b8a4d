// Package config loads service configuration from defaults, an optional YAML
// file and MOTIONJUDGE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/heungbuja/motionjudge/internal/gate"
	"github.com/heungbuja/motionjudge/internal/judge"
	"github.com/heungbuja/motionjudge/internal/reference"
)

// EnvPrefix prefixes every environment override, e.g. MOTIONJUDGE_SERVER_ADDR.
const EnvPrefix = "MOTIONJUDGE"

// Pose service defaults.
const (
	DefaultDetectorMinConfidence   = 0.5
	DefaultDetectorModelComplexity = 1
	DefaultDetectorIdleTimeout     = 30 * time.Second
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Model      ModelConfig      `mapstructure:"model"`
	References ReferencesConfig `mapstructure:"references"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "text" (colored) or "json".
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ModelConfig struct {
	// Checkpoint is the classifier weights file. Empty disables the
	// classifier routes.
	Checkpoint string `mapstructure:"checkpoint"`
}

type ReferencesConfig struct {
	Dir       string `mapstructure:"dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

type DetectorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Script          string        `mapstructure:"script"`
	Python          string        `mapstructure:"python"`
	MinConfidence   float64       `mapstructure:"min_confidence"`
	ModelComplexity int           `mapstructure:"model_complexity"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

type ThresholdsConfig struct {
	Classifier ClassifierThresholds `mapstructure:"classifier"`
	Matcher    MatcherThresholds    `mapstructure:"matcher"`
	Motion     MotionThresholds     `mapstructure:"motion"`
	Gate       GateThresholds       `mapstructure:"gate"`
}

type ClassifierThresholds struct {
	High           float64 `mapstructure:"high"`
	Medium         float64 `mapstructure:"medium"`
	Low            float64 `mapstructure:"low"`
	MinValidFrames int     `mapstructure:"min_valid_frames"`
}

type MatcherThresholds struct {
	HighDistance   float64 `mapstructure:"high_distance"`
	HighCosine     float64 `mapstructure:"high_cosine"`
	MediumDistance float64 `mapstructure:"medium_distance"`
	MediumCosine   float64 `mapstructure:"medium_cosine"`
}

type MotionThresholds struct {
	MinFrames int     `mapstructure:"min_frames"`
	MinMotion float64 `mapstructure:"min_motion"`
}

type GateThresholds struct {
	ClapMaxMinDistance  float64 `mapstructure:"clap_max_min_distance"`
	ClapMaxMeanDistance float64 `mapstructure:"clap_max_mean_distance"`
	ClapMinRange        float64 `mapstructure:"clap_min_range"`
	MarginCosine        float64 `mapstructure:"margin_cosine"`
	MarginDistance      float64 `mapstructure:"margin_distance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.path", "~/.motionjudge/motionjudge.db")
	v.SetDefault("model.checkpoint", "")
	v.SetDefault("references.dir", "")
	v.SetDefault("references.cache_size", reference.DefaultCacheSize)

	v.SetDefault("detector.enabled", false)
	v.SetDefault("detector.script", "")
	v.SetDefault("detector.python", "")
	v.SetDefault("detector.min_confidence", DefaultDetectorMinConfidence)
	v.SetDefault("detector.model_complexity", DefaultDetectorModelComplexity)
	v.SetDefault("detector.idle_timeout", DefaultDetectorIdleTimeout)

	jt := judge.DefaultThresholds
	v.SetDefault("thresholds.classifier.high", jt.ProbabilityHigh)
	v.SetDefault("thresholds.classifier.medium", jt.ProbabilityMedium)
	v.SetDefault("thresholds.classifier.low", jt.ProbabilityLow)
	v.SetDefault("thresholds.classifier.min_valid_frames", judge.DefaultMinValidFrames)
	v.SetDefault("thresholds.matcher.high_distance", jt.HighDistance)
	v.SetDefault("thresholds.matcher.high_cosine", jt.HighCosine)
	v.SetDefault("thresholds.matcher.medium_distance", jt.MediumDistance)
	v.SetDefault("thresholds.matcher.medium_cosine", jt.MediumCosine)
	v.SetDefault("thresholds.motion.min_frames", jt.MinFrames)
	v.SetDefault("thresholds.motion.min_motion", jt.MinMotion)

	gt := gate.DefaultThresholds
	v.SetDefault("thresholds.gate.clap_max_min_distance", gt.ClapMaxMinDistance)
	v.SetDefault("thresholds.gate.clap_max_mean_distance", gt.ClapMaxMeanDistance)
	v.SetDefault("thresholds.gate.clap_min_range", gt.ClapMinRange)
	v.SetDefault("thresholds.gate.margin_cosine", gt.MarginCosine)
	v.SetDefault("thresholds.gate.margin_distance", gt.MarginDistance)
}

// Load reads the configuration. When path is empty, motionjudge.yaml is
// looked up in the working directory and ~/.motionjudge and is optional; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("motionjudge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.motionjudge")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects threshold tables that cannot order judgments.
func (c *Config) Validate() error {
	ct := c.Thresholds.Classifier
	if !(ct.High >= ct.Medium && ct.Medium >= ct.Low) {
		return fmt.Errorf("classifier thresholds must satisfy high >= medium >= low, got %v/%v/%v", ct.High, ct.Medium, ct.Low)
	}
	mt := c.Thresholds.Matcher
	if mt.HighDistance > mt.MediumDistance {
		return fmt.Errorf("matcher high_distance %v exceeds medium_distance %v", mt.HighDistance, mt.MediumDistance)
	}
	if mt.HighCosine < mt.MediumCosine {
		return fmt.Errorf("matcher high_cosine %v is below medium_cosine %v", mt.HighCosine, mt.MediumCosine)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// JudgeThresholds returns the scorer and precheck table.
func (c *Config) JudgeThresholds() judge.Thresholds {
	t := c.Thresholds
	return judge.Thresholds{
		ProbabilityHigh:   t.Classifier.High,
		ProbabilityMedium: t.Classifier.Medium,
		ProbabilityLow:    t.Classifier.Low,
		HighDistance:      t.Matcher.HighDistance,
		HighCosine:        t.Matcher.HighCosine,
		MediumDistance:    t.Matcher.MediumDistance,
		MediumCosine:      t.Matcher.MediumCosine,
		MinFrames:         t.Motion.MinFrames,
		MinMotion:         t.Motion.MinMotion,
	}
}

// GateThresholds returns the heuristic gate bounds.
func (c *Config) GateThresholds() gate.Thresholds {
	return gate.Thresholds(c.Thresholds.Gate)
}
