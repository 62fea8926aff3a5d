package solver

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/device"
	"github.com/pthm-cable/squish/scene"
	"github.com/pthm-cable/squish/telemetry"
)

// Solver owns all particle state and advances it through sub-stepped
// constraint projection. Two instances can coexist; there is no shared
// global state. A Solver is driven from a single goroutine.
type Solver struct {
	p      *Particles
	grid   *Grid
	dev    *device.Device
	planes []Plane
	perf   *telemetry.PerfCollector

	radius      float32
	h           float32
	restDensity float32

	gravity           mgl32.Vec3
	substeps          int
	constraintIters   int
	gridIters         int
	stabilizeIters    int
	sleepEps          float32
	massScalingK      float32
	particleCollision bool

	relaxation    float32
	sCorrK        float32
	sCorrN        int
	sCorrDenom    float32 // poly6 at the anti-clustering reference distance
	vorticityEps  float32
	cohesion      bool
	cohesionGamma float32
	xsphC         float32
}

// New builds a solver from a scene description and configuration. All
// device storage is allocated here; append failures (capacity, off-center
// references) surface as errors and nothing of the half-built scene is
// retained.
func New(sc *scene.Scene, cfg *config.Config, seed int64) (*Solver, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	radius := float32(sc.ParticleRadius)
	h := cfg.Derived.KernelFactor32 * radius

	s := &Solver{
		p:    NewParticles(sc.MaxParticles, sc.MaxBodies),
		dev:  device.New(cfg.Device.Workers),
		grid: NewGrid(mgl32.Vec3(cfg.Derived.GridOrigin32), cfg.Grid.Dims, h, sc.MaxParticles),

		radius:      radius,
		h:           h,
		restDensity: float32(sc.RestDensity),

		gravity:           mgl32.Vec3(cfg.Derived.Gravity32),
		substeps:          cfg.Solver.Substeps,
		constraintIters:   cfg.Solver.ConstraintIters,
		gridIters:         cfg.Solver.GridIters,
		stabilizeIters:    cfg.Solver.StabilizeIters,
		sleepEps:          cfg.Derived.SleepThreshold32,
		massScalingK:      cfg.Derived.MassScalingK32,
		particleCollision: cfg.Solver.ParticleCollision,

		relaxation:    cfg.Derived.Relaxation32,
		sCorrK:        cfg.Derived.SCorrK32,
		sCorrN:        cfg.Fluid.SCorrN,
		vorticityEps:  cfg.Derived.VorticityEps32,
		cohesion:      cfg.Fluid.Cohesion,
		cohesionGamma: cfg.Derived.Cohesion32,
		xsphC:         cfg.Derived.XSPH32,
	}

	// Anti-clustering reference weight at a fixed distance inside the
	// kernel support
	dq := mgl32.Vec3{cfg.Derived.SCorrDq32 * h, 0, 0}
	s.sCorrDenom = Poly6(dq, h)
	if s.sCorrDenom <= 0 {
		return nil, fmt.Errorf("solver: scorr_dq %g is outside kernel support", cfg.Fluid.SCorrDq)
	}

	for _, pl := range sc.Planes {
		s.planes = append(s.planes, Plane{
			Origin: mgl32.Vec3{float32(pl.Origin[0]), float32(pl.Origin[1]), float32(pl.Origin[2])},
			Normal: mgl32.Vec3{float32(pl.Normal[0]), float32(pl.Normal[1]), float32(pl.Normal[2])},
		})
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range sc.Bodies {
		world, ref := scene.BodyPositions(&sc.Bodies[i])
		if _, err := s.p.AddRigidBody(world, ref, float32(sc.Bodies[i].Mass)); err != nil {
			return nil, fmt.Errorf("scene body %d: %w", i, err)
		}
	}
	for i := range sc.Granulars {
		if err := s.p.AddGranulars(scene.GroupPositions(&sc.Granulars[i], rng), float32(sc.Granulars[i].Mass)); err != nil {
			return nil, fmt.Errorf("scene granular group %d: %w", i, err)
		}
	}
	for i := range sc.Fluids {
		if err := s.p.AddFluids(scene.GroupPositions(&sc.Fluids[i], rng), float32(sc.Fluids[i].Mass)); err != nil {
			return nil, fmt.Errorf("scene fluid group %d: %w", i, err)
		}
	}

	return s, nil
}

// SetPerfCollector attaches a per-phase timing collector. Pass nil to
// detach.
func (s *Solver) SetPerfCollector(perf *telemetry.PerfCollector) {
	s.perf = perf
}

func (s *Solver) phase(name string) {
	if s.perf != nil {
		s.perf.StartPhase(name)
	}
}

// Particles exposes the particle storage. Read-only for callers; tests
// and telemetry inspect it between updates.
func (s *Solver) Particles() *Particles {
	return s.p
}

// Grid exposes the broad-phase grid of the latest update.
func (s *Solver) Grid() *Grid {
	return s.grid
}

// Planes returns the collision planes.
func (s *Solver) Planes() []Plane {
	return s.planes
}

// KernelRadius returns the SPH support radius h.
func (s *Solver) KernelRadius() float32 {
	return s.h
}

// Positions refreshes and returns the renderer view of committed
// positions, packed (x, y, z, 0). The solver does not write positions
// until the next Update call.
func (s *Solver) Positions() []mgl32.Vec4 {
	return s.p.Packed()
}

// Close releases the compute workers.
func (s *Solver) Close() {
	s.dev.Close()
}

// Update advances the simulation by dt, split into the configured number
// of substeps. Each substep predicts positions, projects constraints
// against the rebuilt grid, reconstructs velocities, and runs the fluid
// velocity post-processing.
func (s *Solver) Update(dt float32) {
	sdt := dt / float32(s.substeps)
	invSdt := 1 / sdt

	for step := 0; step < s.substeps; step++ {
		s.phase(telemetry.PhaseIntegrate)
		s.applyGravity(sdt)
		s.predict(sdt)
		s.computeShockMasses()

		s.phase(telemetry.PhaseStabilize)
		s.stabilize()

		for g := 0; g < s.gridIters; g++ {
			s.phase(telemetry.PhaseGrid)
			s.grid.Build(s.p.Predicted, s.p.count)

			for it := 0; it < s.constraintIters; it++ {
				s.phase(telemetry.PhasePlanes)
				s.planeConstraint()

				if s.particleCollision {
					s.phase(telemetry.PhaseParticles)
					s.solidCollision()
				}

				s.phase(telemetry.PhaseFluid)
				s.fluidLambda()
				s.fluidPosition()

				if len(s.p.bodies) > 0 {
					s.phase(telemetry.PhaseShape)
					s.shapeMatch()
				}
			}
		}

		s.phase(telemetry.PhaseVelocity)
		s.updateVelocity(invSdt)
		s.commitPositions()

		s.phase(telemetry.PhasePost)
		s.computeOmega()
		s.vorticityForce(sdt)
		if s.cohesion {
			s.computeNormals()
			s.akinciCohesion(dt)
		}
		s.xsphViscosity()
	}
}
