// Package config provides configuration loading and access for the solver.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all solver configuration parameters.
type Config struct {
	Solver    SolverConfig    `yaml:"solver"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Grid      GridConfig      `yaml:"grid"`
	Device    DeviceConfig    `yaml:"device"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SolverConfig holds the substep loop parameters.
type SolverConfig struct {
	Substeps          int        `yaml:"substeps"`           // position-based substeps per frame
	ConstraintIters   int        `yaml:"constraint_iters"`   // inner projection iterations
	GridIters         int        `yaml:"grid_iters"`         // outer grid-rebuild iterations
	StabilizeIters    int        `yaml:"stabilize_iters"`    // pre-projection plane passes
	Gravity           [3]float64 `yaml:"gravity"`            // force per unit mass
	SleepThreshold    float64    `yaml:"sleep_threshold"`    // commit gate for solid particles
	MassScalingK      float64    `yaml:"mass_scaling_k"`     // shock-propagation exponent
	ParticleCollision bool       `yaml:"particle_collision"` // solid particle-particle projection pass
}

// FluidConfig holds the density-constraint and post-processing parameters.
type FluidConfig struct {
	Relaxation         float64 `yaml:"relaxation"`           // epsilon added to the lambda denominator
	SCorrK             float64 `yaml:"scorr_k"`              // anti-clustering strength
	SCorrN             int     `yaml:"scorr_n"`              // anti-clustering exponent
	SCorrDq            float64 `yaml:"scorr_dq"`             // reference distance as a fraction of h
	VorticityEps       float64 `yaml:"vorticity_eps"`        // confinement strength
	Cohesion           bool    `yaml:"cohesion"`             // Akinci surface tension pass
	CohesionStrength   float64 `yaml:"cohesion_strength"`    // Akinci gamma
	XSPHViscosity      float64 `yaml:"xsph_viscosity"`       // velocity smoothing coefficient
	KernelRadiusFactor float64 `yaml:"kernel_radius_factor"` // h = factor * particle radius
}

// GridConfig holds the broad-phase uniform grid extents.
// Cell size is derived from the kernel radius, not configured directly.
type GridConfig struct {
	Origin [3]float64 `yaml:"origin"` // world position of cell (0,0,0)
	Dims   [3]int     `yaml:"dims"`   // cell counts per axis
}

// DeviceConfig holds compute dispatch parameters.
type DeviceConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int `yaml:"stats_window"`          // frames per stats window
	PerfCollectorWindow int `yaml:"perf_collector_window"` // frames averaged for perf stats
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Gravity32        [3]float32 // Solver.Gravity as float32
	SleepThreshold32 float32
	MassScalingK32   float32
	Relaxation32     float32
	SCorrK32         float32
	SCorrDq32        float32
	VorticityEps32   float32
	Cohesion32       float32
	XSPH32           float32
	KernelFactor32   float32
	GridOrigin32     [3]float32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// validate rejects parameter values the solver cannot run with.
func (c *Config) validate() error {
	if c.Solver.Substeps < 1 {
		return fmt.Errorf("config: substeps must be >= 1, got %d", c.Solver.Substeps)
	}
	if c.Solver.ConstraintIters < 1 {
		return fmt.Errorf("config: constraint_iters must be >= 1, got %d", c.Solver.ConstraintIters)
	}
	if c.Solver.GridIters < 1 {
		return fmt.Errorf("config: grid_iters must be >= 1, got %d", c.Solver.GridIters)
	}
	if c.Fluid.KernelRadiusFactor <= 0 {
		return fmt.Errorf("config: kernel_radius_factor must be positive, got %g", c.Fluid.KernelRadiusFactor)
	}
	for i, d := range c.Grid.Dims {
		if d < 1 {
			return fmt.Errorf("config: grid dims[%d] must be >= 1, got %d", i, d)
		}
	}
	cells := c.Grid.Dims[0] * c.Grid.Dims[1] * c.Grid.Dims[2]
	if cells > math.MaxInt32 {
		return fmt.Errorf("config: grid has %d cells, exceeds cell id range", cells)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	for i := 0; i < 3; i++ {
		c.Derived.Gravity32[i] = float32(c.Solver.Gravity[i])
		c.Derived.GridOrigin32[i] = float32(c.Grid.Origin[i])
	}
	c.Derived.SleepThreshold32 = float32(c.Solver.SleepThreshold)
	c.Derived.MassScalingK32 = float32(c.Solver.MassScalingK)
	c.Derived.Relaxation32 = float32(c.Fluid.Relaxation)
	c.Derived.SCorrK32 = float32(c.Fluid.SCorrK)
	c.Derived.SCorrDq32 = float32(c.Fluid.SCorrDq)
	c.Derived.VorticityEps32 = float32(c.Fluid.VorticityEps)
	c.Derived.Cohesion32 = float32(c.Fluid.CohesionStrength)
	c.Derived.XSPH32 = float32(c.Fluid.XSPHViscosity)
	c.Derived.KernelFactor32 = float32(c.Fluid.KernelRadiusFactor)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
