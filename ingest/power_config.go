package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// powerModelEntry mirrors one {modelName: {...}} leaf of the power config
// file, mapstructure-tagged the way reinforcement.TrainingConfig tags its
// nested sections.
type powerModelEntry struct {
	MaxCharge        float64 `mapstructure:"maxCharge"`
	MinChargePct     float64 `mapstructure:"minChargePct"`
	InitialChargePct float64 `mapstructure:"initialChargePct"`
	PowerIn          float64 `mapstructure:"powerIn"`
	IdlePowerOut     float64 `mapstructure:"idlePowerOut"`
	SensorPowerOut   float64 `mapstructure:"sensorPowerOut"`
	DownlinkPowerOut float64 `mapstructure:"downlinkPowerOut"`
}

// ReadPowerConfig parses the power config file (a nested mapping of
// modelName -> field set) and returns the EnergyParams for modelName, with
// the "default" entry's fields merged in first so a named model may
// override only the fields it cares about, per spec §6. Grounded on
// reinforcement.FromYaml's viper.New()+ReadInConfig() call, since the
// original's "nested mapping literal" maps onto YAML far more directly
// than a line-oriented scan.
func ReadPowerConfig(path, modelName string) (satstate.EnergyParams, error) {
	vp := viper.New()
	vp.SetConfigFile(filepath.Base(path))
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return satstate.EnergyParams{}, fmt.Errorf("ingest: power config: %w: %w", planerrors.ErrInputMissing, err)
	}

	var models map[string]powerModelEntry
	if err := vp.Unmarshal(&models); err != nil {
		return satstate.EnergyParams{}, fmt.Errorf("ingest: power config: %w", err)
	}

	merged, ok := models["default"]
	if !ok {
		return satstate.EnergyParams{}, fmt.Errorf("ingest: power config: %w: no \"default\" entry", planerrors.ErrInputMissing)
	}
	if modelName != "default" {
		// viper lower-cases every key it reads.
		override, ok := models[strings.ToLower(modelName)]
		if !ok {
			return satstate.EnergyParams{}, fmt.Errorf("ingest: power config: %w: model %q not found", planerrors.ErrInputMissing, modelName)
		}
		merged = mergePowerModel(merged, override)
	}

	return satstate.NewEnergyParams(
		merged.MaxCharge,
		merged.MinChargePct,
		merged.InitialChargePct,
		merged.PowerIn,
		merged.IdlePowerOut,
		merged.SensorPowerOut,
		merged.DownlinkPowerOut,
	), nil
}

// mergePowerModel overlays non-zero fields of override onto base, matching
// the Python original's dict.update() merge of the named model over
// "default".
func mergePowerModel(base, override powerModelEntry) powerModelEntry {
	merged := base
	if override.MaxCharge != 0 {
		merged.MaxCharge = override.MaxCharge
	}
	if override.MinChargePct != 0 {
		merged.MinChargePct = override.MinChargePct
	}
	if override.InitialChargePct != 0 {
		merged.InitialChargePct = override.InitialChargePct
	}
	if override.PowerIn != 0 {
		merged.PowerIn = override.PowerIn
	}
	if override.IdlePowerOut != 0 {
		merged.IdlePowerOut = override.IdlePowerOut
	}
	if override.SensorPowerOut != 0 {
		merged.SensorPowerOut = override.SensorPowerOut
	}
	if override.DownlinkPowerOut != 0 {
		merged.DownlinkPowerOut = override.DownlinkPowerOut
	}
	return merged
}
