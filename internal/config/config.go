// Package config loads a simulation scenario: the terminal roster, the
// attacker's AttackSelection, and the timing knobs spec.md §6 names as the
// CLI's external interface. Scenarios are YAML, matching the teacher's
// structured-config convention (gopkg.in/yaml.v3) rather than the free-form
// directive file the teacher's own C-ported config.go parses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TerminalSpec describes one non-BC terminal in the scenario.
type TerminalSpec struct {
	Address uint8  `yaml:"address"`
	Role    string `yaml:"role"` // "rt", "bm", or "attacker"

	// Attacker-only fields.
	Attack    string `yaml:"attack,omitempty"`
	Target    uint8  `yaml:"target,omitempty"`
	Src       uint8  `yaml:"src,omitempty"`
	Dst       uint8  `yaml:"dst,omitempty"`
	N         int    `yaml:"n,omitempty"`
	RapidFire bool   `yaml:"rapid_fire,omitempty"`
	WarmUpMS  int64  `yaml:"warm_up_ms,omitempty"`

	// TraceColumns names the trace columns an "rt" terminal transmits, in
	// data-word order (two data words per column; see bus.SensorHandler).
	// Only meaningful alongside Scenario.TracePath.
	TraceColumns []string `yaml:"trace_columns,omitempty"`
}

// Scenario is the full simulation configuration.
type Scenario struct {
	Proto        string         `yaml:"proto"` // "rt2rt", "rt2bc", "bc2rt", "rotation"
	DurationMS   int64          `yaml:"duration_ms"`
	WriteDelayUS int64          `yaml:"write_delay_us"`
	TracePath    string         `yaml:"trace,omitempty"`
	LogDir       string         `yaml:"log_dir,omitempty"`
	Terminals    []TerminalSpec `yaml:"terminals"`
}

func (s Scenario) Duration() time.Duration { return time.Duration(s.DurationMS) * time.Millisecond }
func (s Scenario) WriteDelay() time.Duration {
	return time.Duration(s.WriteDelayUS) * time.Microsecond
}

// Load parses a YAML scenario file.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Single builds the minimal one-attacker scenario the CLI's flag-only
// invocation supports (spec.md §6: "target attack label, simulation
// duration, write-delay, and optional trace-store path"), matching the
// end-to-end scenarios catalogued in spec.md §8.
func Single(attack string, proto string, durationMS, writeDelayUS int64, tracePath string, traceColumns []string, target uint8) Scenario {
	rt1 := TerminalSpec{Address: 1, Role: "rt"}
	if tracePath != "" {
		rt1.TraceColumns = traceColumns
	}
	return Scenario{
		Proto:        proto,
		DurationMS:   durationMS,
		WriteDelayUS: writeDelayUS,
		TracePath:    tracePath,
		Terminals: []TerminalSpec{
			rt1,
			{Address: 2, Role: "rt"},
			{Address: 3, Role: "attacker", Attack: attack, Target: target},
		},
	}
}
