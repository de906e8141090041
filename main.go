/*
dshield-planner searches for a high-value Earth-observation and downlink
schedule for a small satellite constellation, using Monte Carlo Tree
Search over a discrete per-second plan-variable domain. A pool of parallel
workers each runs independent (or, in shared-tree mode, cooperating)
rollouts against the same plan-variable scaffolding, and the supervisor
publishes the best plan found across the whole pool.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/richardlevinson/dshield-planner/config"
	"github.com/richardlevinson/dshield-planner/ingest"
	"github.com/richardlevinson/dshield-planner/mcts"
	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/progress"
	"github.com/richardlevinson/dshield-planner/report"
	"github.com/richardlevinson/dshield-planner/rollout"
	"github.com/richardlevinson/dshield-planner/satstate"
	"github.com/richardlevinson/dshield-planner/worker"
)

var (
	configPath     *string
	progressAddr   *string
	enableProgress *bool
)

// TODO: per 12-factor rules these should be taken from env or a config-map.
func init() {
	configPath = flag.String("config", "./config.yaml", "path to the planner config file")
	progressAddr = flag.String("progressAddr", ":8080", "address the live progress server listens on")
	enableProgress = flag.Bool("progress", false, "serve a live rollout-progress view while searching")
	flag.Parse()
}

func runApp() error {
	cfg, err := config.FromYAML(*configPath)
	if err != nil {
		return err
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	searchCtx, cancel, err := cfg.WithTimeLimit(appCtx)
	if err != nil {
		return err
	}
	defer cancel()

	targetValues, err := ingest.ReadTargetValues(filepath.Join(cfg.DataDir, "targetValues.txt"))
	if err != nil {
		return err
	}
	valueOf := func(gp int) float64 { return targetValues[gp] }

	power, err := ingest.ReadPowerConfig(filepath.Join(cfg.DataDir, "powerConfig.yaml"), cfg.PowerModel)
	if err != nil {
		return err
	}

	builder := planmodel.Builder{HorizonStart: cfg.HorizonStart, HorizonDuration: cfg.HorizonDuration}
	satellites := make(map[string]rollout.SatelliteConfig, len(cfg.Satellites))

	for _, satID := range cfg.Satellites {
		seconds, err := ingest.ReadAccessWindows(filepath.Join(cfg.DataDir, satID+"_accessWindows.txt"))
		if err != nil {
			return err
		}

		contactFiles, err := filepath.Glob(filepath.Join(cfg.DataDir, satID+"_*_contacts.txt"))
		if err != nil {
			return fmt.Errorf("main: globbing ground contact files for %s: %w", satID, err)
		}
		for _, contactFile := range contactFiles {
			_, windows, err := ingest.ReadGroundContacts(contactFile)
			if err != nil {
				return err
			}
			ingest.ApplyGroundContacts(seconds, windows)
		}

		eclipses, err := ingest.ReadEclipses(filepath.Join(cfg.DataDir, satID+"_eclipse.txt"))
		if err != nil {
			return err
		}

		builder.Satellites = append(builder.Satellites, planmodel.SatelliteInput{SatID: satID, Seconds: seconds})
		satellites[satID] = rollout.SatelliteConfig{
			Storage: satstate.StorageParams{
				Capacity:             cfg.Storage.Capacity,
				CollectionRatePerSec: cfg.Storage.CollectionRatePerSec,
				DownlinkRatePerSec:   cfg.Storage.DownlinkRatePerSec,
			},
			Power:   power,
			Eclipse: eclipses.Func(),
		}
	}

	build, err := builder.Build()
	if err != nil {
		return err
	}

	pool := &worker.Pool{
		Build:      build,
		Satellites: satellites,
		ValueOf:    valueOf,
		Sorter:     mcts.GreedySorter{ValueOf: valueOf},
		Config: worker.Config{
			RolloutLimit: cfg.Planner.RolloutLimit,
			ProcessCount: cfg.Planner.ProcessCount,
			Greedy:       cfg.Planner.Greedy,
			AllGreedy:    cfg.Planner.AllGreedy,
			SharedTree:   cfg.Planner.SharedTree,
		},
	}
	if cfg.Planner.ProcessCount == 0 {
		pool.Config.ProcessCount = runtime.NumCPU()
	}

	if *enableProgress {
		progressCh := make(chan worker.ProgressSample, 64)
		pool.Progress = progressCh
		srv := progress.NewServer(*progressAddr, progressCh)
		go func() {
			if err := srv.Serve(appCtx); err != nil {
				log.Println("progress: serve:", err)
			}
		}()
	}

	supervisor := worker.NewSupervisor(pool, nil)
	result, err := supervisor.Run(searchCtx)
	if err != nil {
		return err
	}

	return writeResults(cfg, build, result)
}

func writeResults(cfg *config.PlannerConfig, build *planmodel.BuildResult, result *worker.Result) error {
	if err := writeFile(cfg.DataDir, "planVars.txt", func(w *os.File) error { return report.WritePlanVars(w, build, false) }); err != nil {
		return err
	}
	if err := writeFile(cfg.DataDir, "planVars.filtered.txt", func(w *os.File) error { return report.WritePlanVars(w, build, true) }); err != nil {
		return err
	}

	for satID, state := range result.BestStates {
		satID, state := satID, state
		if err := writeFile(cfg.DataDir, "bestPlan."+satID+".Summary.txt", func(w *os.File) error {
			return report.WriteBestPlanSummary(w, satID, result.BestScore, state.Plan, state.Images)
		}); err != nil {
			return err
		}
		if err := writeFile(cfg.DataDir, "bestPlan."+satID+".Details.txt", func(w *os.File) error {
			return report.WriteBestPlanDetails(w, satID, result.BestScore, state.Plan, state.Images)
		}); err != nil {
			return err
		}
		if err := writeFile(cfg.DataDir, satID+".imageInfo.txt", func(w *os.File) error {
			return report.WriteImageInfo(w, state.Images)
		}); err != nil {
			return err
		}

		satCfg, err := satelliteConfigFor(cfg, satID)
		if err != nil {
			return err
		}
		verifyResult, err := report.VerifyPlan(satID, satCfg.storage, satCfg.power, cfg.HorizonStart, satCfg.eclipse, satCfg.value, state.Plan)
		if err != nil {
			return err
		}
		if err := writeFile(cfg.DataDir, "planSim."+satID+".txt", func(w *os.File) error {
			return report.WriteVerifyTrace(w, satID, verifyResult)
		}); err != nil {
			return err
		}
	}
	return nil
}

// satelliteReplayConfig re-reads the per-satellite inputs the verifier
// needs to replay a plan independently of the search's in-memory state.
type satelliteReplayConfig struct {
	storage satstate.StorageParams
	power   satstate.EnergyParams
	eclipse satstate.EclipseFunc
	value   satstate.ValueFunc
}

func satelliteConfigFor(cfg *config.PlannerConfig, satID string) (*satelliteReplayConfig, error) {
	eclipses, err := ingest.ReadEclipses(filepath.Join(cfg.DataDir, satID+"_eclipse.txt"))
	if err != nil {
		return nil, err
	}
	power, err := ingest.ReadPowerConfig(filepath.Join(cfg.DataDir, "powerConfig.yaml"), cfg.PowerModel)
	if err != nil {
		return nil, err
	}
	targetValues, err := ingest.ReadTargetValues(filepath.Join(cfg.DataDir, "targetValues.txt"))
	if err != nil {
		return nil, err
	}
	return &satelliteReplayConfig{
		storage: satstate.StorageParams{
			Capacity:             cfg.Storage.Capacity,
			CollectionRatePerSec: cfg.Storage.CollectionRatePerSec,
			DownlinkRatePerSec:   cfg.Storage.DownlinkRatePerSec,
		},
		power:   power,
		eclipse: eclipses.Func(),
		value:   func(gp int) float64 { return targetValues[gp] },
	}, nil
}

func writeFile(dir, name string, write func(*os.File) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("main: creating %s: %w", name, err)
	}
	defer f.Close()
	return write(f)
}

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
