package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	DebugLevel         int `yaml:"debug_level"`
	MaxOpsPerStep      int `yaml:"max_ops_per_step"`
	SnapshotEverySteps int `yaml:"snapshot_every_steps"`

	// Timed behaviors.
	BasicTickSeconds    float64 `yaml:"basic_tick_seconds"`
	FireProbability     float64 `yaml:"fire_probability"`
	AcornDecaySeconds   float64 `yaml:"acorn_decay_seconds"`
	AppleFermentSeconds float64 `yaml:"apple_ferment_seconds"`

	ScytheWear  float64 `yaml:"scythe_wear"`
	SoilSurface int     `yaml:"soil_surface"`

	Tasks   map[string]TaskTuning `yaml:"tasks"`
	Terrain TerrainTuning         `yaml:"terrain"`
}

// TaskTuning parameterizes one task kind. The rate is Increment/RatePeriod
// while ticks are rescheduled every TickPeriod; the two periods are kept
// apart on purpose and are not reconciled here.
type TaskTuning struct {
	Increment  float64        `yaml:"increment"`
	RatePeriod float64        `yaml:"rate_period"`
	TickPeriod float64        `yaml:"tick_period"`
	MinRate    float64        `yaml:"min_rate"`
	Materials  map[int]string `yaml:"materials"`
}

type TerrainTuning struct {
	DefaultSurface int `yaml:"default_surface"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		TickRateHz:          4,
		DebugLevel:          0,
		MaxOpsPerStep:       4096,
		SnapshotEverySteps:  3600,
		BasicTickSeconds:    3,
		FireProbability:     0.0001,
		AcornDecaySeconds:   1800,
		AppleFermentSeconds: 900,
		ScytheWear:          0.01,
		SoilSurface:         2,
		Tasks: map[string]TaskTuning{
			"dig": {
				Increment:  0.1,
				RatePeriod: 1.75,
				TickPeriod: 1.75,
				MinRate:    0.01,
				Materials:  map[int]string{1: "sand", 2: "earth", 3: "silt"},
			},
			"delve": {
				Increment:  0.5,
				RatePeriod: 0.75,
				TickPeriod: 0.75,
				MinRate:    0.01,
				Materials:  map[int]string{0: "boulder", 4: "ice"},
			},
		},
		Terrain: TerrainTuning{DefaultSurface: 2},
	}
}

// Load reads a tuning file over the defaults, so a file only needs the keys it
// changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.MaxOpsPerStep <= 0 {
		return fmt.Errorf("max_ops_per_step must be > 0")
	}
	if t.FireProbability < 0 || t.FireProbability > 1 {
		return fmt.Errorf("fire_probability must be in [0,1]")
	}
	for name, tt := range t.Tasks {
		if tt.Increment <= 0 {
			return fmt.Errorf("tasks.%s.increment must be > 0", name)
		}
		if tt.RatePeriod <= 0 || tt.TickPeriod <= 0 {
			return fmt.Errorf("tasks.%s periods must be > 0", name)
		}
		if len(tt.Materials) == 0 {
			return fmt.Errorf("tasks.%s.materials is empty", name)
		}
	}
	return nil
}
