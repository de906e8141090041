// Package config loads PlannerConfig from a YAML file: satellite list,
// horizon, storage limits, worker-pool parameters, and the selected power
// model name (spec §6's recognized configuration options). Grounded on
// reinforcement.TrainingConfig/FromYaml's viper.New()+ReadInConfig()+
// Unmarshal() sequence and its WithTrainingDeadline helper, generalized
// here to WithTimeLimit.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/richardlevinson/dshield-planner/planerrors"
)

// StorageConfig is the {capacity, collectionRatePerSec, downlinkRatePerSec}
// section of spec §6.
type StorageConfig struct {
	Capacity             float64 `mapstructure:"capacity" yaml:"capacity"`
	CollectionRatePerSec float64 `mapstructure:"collectionRatePerSec" yaml:"collectionRatePerSec"`
	DownlinkRatePerSec   float64 `mapstructure:"downlinkRatePerSec" yaml:"downlinkRatePerSec"`
}

// PlannerParams is the {rolloutLimit, processCount, greedy, allGreedy,
// timeLimit} section of spec §6.
type PlannerParams struct {
	RolloutLimit int    `mapstructure:"rolloutLimit" yaml:"rolloutLimit"`
	ProcessCount int    `mapstructure:"processCount" yaml:"processCount"`
	Greedy       bool   `mapstructure:"greedy" yaml:"greedy"`
	AllGreedy    bool   `mapstructure:"allGreedy" yaml:"allGreedy"`
	TimeLimit    string `mapstructure:"timeLimit" yaml:"timeLimit"` // Go duration string, e.g. "10m"; empty means unbounded
	SharedTree   bool   `mapstructure:"sharedTree" yaml:"sharedTree"`
}

// PlannerConfig is the whole of spec §6's "in-memory structure with the
// recognized options".
type PlannerConfig struct {
	Satellites      []string      `mapstructure:"satellites" yaml:"satellites"`
	HorizonStart    int           `mapstructure:"horizonStart" yaml:"horizonStart"`
	HorizonDuration int           `mapstructure:"horizonDuration" yaml:"horizonDuration"`
	Storage         StorageConfig `mapstructure:"storage" yaml:"storage"`
	Planner         PlannerParams `mapstructure:"planner" yaml:"planner"`
	PowerModel      string        `mapstructure:"powerModel" yaml:"powerModel"`
	DataDir         string        `mapstructure:"dataDir" yaml:"dataDir"`
}

// FromYAML reads and validates a PlannerConfig from path. Grounded on
// FromYaml's viper.New()+ReadInConfig()+Unmarshal() sequence.
func FromYAML(path string) (*PlannerConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(filepath.Base(path))
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: %w: %w", planerrors.ErrInputMissing, err)
	}

	cfg := &PlannerConfig{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the bare minimum every component downstream assumes
// holds: at least one satellite, a non-negative horizon, and a positive
// rollout limit. planner.processCount is only rejected when negative:
// zero/omitted means "auto-detect", resolved by the caller (main.go falls
// back to runtime.NumCPU()) after Validate has already passed.
func (c *PlannerConfig) Validate() error {
	if len(c.Satellites) == 0 {
		return fmt.Errorf("config: %w: satellites list is empty", planerrors.ErrInputMissing)
	}
	if c.HorizonDuration < 0 {
		return fmt.Errorf("config: %w: horizonDuration must be >= 0", planerrors.ErrConstraintBreach)
	}
	if c.Planner.ProcessCount < 0 {
		return fmt.Errorf("config: %w: planner.processCount must be >= 0", planerrors.ErrConstraintBreach)
	}
	if c.Planner.RolloutLimit <= 0 {
		return fmt.Errorf("config: %w: planner.rolloutLimit must be > 0", planerrors.ErrConstraintBreach)
	}
	return nil
}

// WithTimeLimit returns a context bounded by Planner.TimeLimit, if set, and
// its cancel func. Generalized from WithTrainingDeadline: a plain duration
// string rather than a map, since spec §6 names timeLimit as a single
// optional seconds value.
func (c *PlannerConfig) WithTimeLimit(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.Planner.TimeLimit == "" {
		innerCtx, cancel := context.WithCancel(ctx)
		return innerCtx, cancel, nil
	}
	duration, err := time.ParseDuration(c.Planner.TimeLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w: timeLimit %q: %w", planerrors.ErrConstraintBreach, c.Planner.TimeLimit, err)
	}
	innerCtx, cancel := context.WithTimeout(ctx, duration)
	return innerCtx, cancel, nil
}
