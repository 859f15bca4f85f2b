// Command samoyed1553 runs the MIL-STD-1553 bus simulator for a single
// scenario: either a YAML scenario file, or a flag-described single-attack
// smoke test matching the end-to-end scenarios in spec.md §8.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/samoyed1553/internal/bus"
	"github.com/doismellburning/samoyed1553/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		attack       = pflag.String("attack", "", "attack label to run (see config.AttackTypeByName); empty disables the attacker")
		target       = pflag.Uint8("target", 2, "RT address the attack targets")
		proto        = pflag.String("proto", "rotation", "BC scheduling profile for generic smoke-test addresses: bc2rt, rt2bc, rt2rt, rotation")
		durationMS   = pflag.Int64("duration", 100, "simulated duration in milliseconds")
		writeDelayUS = pflag.Int64("write-delay", 40, "legitimate-terminal write delay in microseconds")
		tracePath    = pflag.String("trace", "", "optional sensor-trace CSV path")
		traceCols    = pflag.String("trace-columns", "", "comma-separated trace column names the first RT transmits from, two data words per column")
		scenarioPath = pflag.String("scenario", "", "optional YAML scenario file; overrides the other flags")
		logDir       = pflag.String("log-dir", "", "directory to write per-run logs into; empty disables file output")
	)
	pflag.Parse()

	logger := log.New(os.Stderr)
	logger.SetLevel(log.InfoLevel)

	var scenario config.Scenario
	if *scenarioPath != "" {
		s, err := config.Load(*scenarioPath)
		if err != nil {
			logger.Error("failed to load scenario", "err", err)
			return 1
		}
		scenario = s
	} else {
		var columns []string
		if *traceCols != "" {
			columns = strings.Split(*traceCols, ",")
		}
		scenario = config.Single(*attack, *proto, *durationMS, *writeDelayUS, *tracePath, columns, *target)
	}
	if *logDir != "" {
		scenario.LogDir = *logDir
	}

	sys, err := config.Build(scenario, logger)
	if err != nil {
		logger.Error("failed to build scenario", "err", err)
		return 1
	}

	logger.Info("starting simulation", "duration", scenario.Duration(), "session", sys.SessionDir)
	sys.Start()
	time.Sleep(scenario.Duration())
	sys.Stop()

	merged := sys.MergedLog()
	logger.Info("simulation complete", "log_entries", len(merged))

	if scenario.LogDir != "" {
		if err := writeLogs(scenario.LogDir, sys.SessionDir, merged); err != nil {
			logger.Error("failed to flush logs", "err", err)
			return 1
		}
	}

	return 0
}

func writeLogs(dir, session string, merged []bus.LogEntry) error {
	runDir := filepath.Join(dir, session)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", runDir, err)
	}

	sysPath := filepath.Join(runDir, "system.csv")
	f, err := os.Create(sysPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", sysPath, err)
	}
	defer f.Close()
	if err := bus.WriteSystemCSV(f, merged); err != nil {
		return fmt.Errorf("write %s: %w", sysPath, err)
	}

	bmPath := filepath.Join(runDir, "bus_monitor.csv")
	bf, err := os.Create(bmPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", bmPath, err)
	}
	defer bf.Close()
	return bus.WriteBusMonitorCSV(bf, merged)
}
