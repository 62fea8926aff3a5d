package solver

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Typed append-time errors. Runtime passes never fail; every error path
// in the solver is at scene construction.
var (
	ErrCapacityExceeded   = errors.New("particle capacity exceeded")
	ErrOffCenterReference = errors.New("rigid reference positions not centered")
)

// FluidPhase tags fluid particles. Solid particles carry a unique
// positive phase per rigid body (or per granular particle).
const FluidPhase = -1

// offCenterTolerance is the reference-centroid magnitude at or above
// which AddRigidBody rejects a body.
const offCenterTolerance = 1e-5

// RigidBody is one shape-matched particle group. Particles are addressed
// by a half-open index range into the particle arrays; no back-pointers.
type RigidBody struct {
	Lo, Hi       int          // particle range [Lo, Hi)
	Ref          []mgl32.Vec3 // reference shape, centroid at origin
	Rotation     mgl32.Quat   // current orientation
	CenterOfMass mgl32.Vec3   // current world-space centroid
}

// Particles owns every per-particle and per-body array. All arrays are
// allocated once at the declared capacity and bump-appended; indices
// beyond Count() are undefined.
type Particles struct {
	capacity int
	count    int

	Position      []mgl32.Vec3
	Predicted     []mgl32.Vec3
	Temp          []mgl32.Vec3 // double buffer for gathered position passes
	Velocity      []mgl32.Vec3
	TempVelocity  []mgl32.Vec3 // double buffer for gathered velocity passes
	Mass          []float32
	InvMass       []float32
	InvScaledMass []float32 // shock-propagation scaled reciprocal
	Phase         []int32
	Omega         []mgl32.Vec3 // vorticity, fluid only
	Lambda        []float32    // density constraint multiplier, fluid only
	Density       []float32    // SPH density, fluid only
	Normal        []mgl32.Vec3 // surface normal for cohesion, fluid only

	bodies    []RigidBody
	maxBodies int
	nextPhase int32

	packed []mgl32.Vec4 // renderer view, refreshed on demand
}

// NewParticles allocates storage for up to capacity particles and
// maxBodies rigid bodies.
func NewParticles(capacity, maxBodies int) *Particles {
	return &Particles{
		capacity:      capacity,
		Position:      make([]mgl32.Vec3, capacity),
		Predicted:     make([]mgl32.Vec3, capacity),
		Temp:          make([]mgl32.Vec3, capacity),
		Velocity:      make([]mgl32.Vec3, capacity),
		TempVelocity:  make([]mgl32.Vec3, capacity),
		Mass:          make([]float32, capacity),
		InvMass:       make([]float32, capacity),
		InvScaledMass: make([]float32, capacity),
		Phase:         make([]int32, capacity),
		Omega:         make([]mgl32.Vec3, capacity),
		Lambda:        make([]float32, capacity),
		Density:       make([]float32, capacity),
		Normal:        make([]mgl32.Vec3, capacity),
		bodies:        make([]RigidBody, 0, maxBodies),
		maxBodies:     maxBodies,
		nextPhase:     1,
		packed:        make([]mgl32.Vec4, 0, capacity),
	}
}

// Count returns the number of live particles.
func (p *Particles) Count() int {
	return p.count
}

// Capacity returns the fixed particle capacity.
func (p *Particles) Capacity() int {
	return p.capacity
}

// Bodies returns the rigid body table.
func (p *Particles) Bodies() []RigidBody {
	return p.bodies
}

// AddRigidBody appends one rigid body. positions are world-space starts,
// ref the reference shape with zero centroid; both must have equal
// length. Every particle of the body shares one fresh positive phase.
func (p *Particles) AddRigidBody(positions, ref []mgl32.Vec3, massPerParticle float32) (int, error) {
	if len(positions) == 0 || len(positions) != len(ref) {
		return 0, fmt.Errorf("adding rigid body: %d positions vs %d reference positions", len(positions), len(ref))
	}
	if massPerParticle <= 0 {
		return 0, fmt.Errorf("adding rigid body: mass must be positive, got %g", massPerParticle)
	}
	if p.count+len(positions) > p.capacity {
		return 0, fmt.Errorf("adding rigid body of %d particles at count %d/%d: %w",
			len(positions), p.count, p.capacity, ErrCapacityExceeded)
	}
	if len(p.bodies) >= p.maxBodies {
		return 0, fmt.Errorf("adding rigid body %d/%d: %w", len(p.bodies), p.maxBodies, ErrCapacityExceeded)
	}

	// Shape matching assumes the reference centroid is at the origin.
	var c mgl32.Vec3
	for _, r := range ref {
		c = c.Add(r)
	}
	c = c.Mul(1 / float32(len(ref)))
	if c.Len() >= offCenterTolerance {
		return 0, fmt.Errorf("adding rigid body: centroid magnitude %g: %w", c.Len(), ErrOffCenterReference)
	}

	phase := p.freshPhase()
	lo := p.count
	for _, pos := range positions {
		p.appendParticle(pos, massPerParticle, phase)
	}

	refCopy := make([]mgl32.Vec3, len(ref))
	copy(refCopy, ref)
	var com mgl32.Vec3
	for _, pos := range positions {
		com = com.Add(pos)
	}
	com = com.Mul(1 / float32(len(positions)))

	p.bodies = append(p.bodies, RigidBody{
		Lo:           lo,
		Hi:           p.count,
		Ref:          refCopy,
		Rotation:     mgl32.QuatIdent(),
		CenterOfMass: com,
	})
	return len(p.bodies) - 1, nil
}

// AddGranulars appends free solid particles. Each particle is its own
// phase group, so granular particles collide with each other.
func (p *Particles) AddGranulars(positions []mgl32.Vec3, massPerParticle float32) error {
	if massPerParticle <= 0 {
		return fmt.Errorf("adding granulars: mass must be positive, got %g", massPerParticle)
	}
	if p.count+len(positions) > p.capacity {
		return fmt.Errorf("adding %d granulars at count %d/%d: %w",
			len(positions), p.count, p.capacity, ErrCapacityExceeded)
	}
	for _, pos := range positions {
		p.appendParticle(pos, massPerParticle, p.freshPhase())
	}
	return nil
}

// AddFluids appends fluid particles (phase FluidPhase).
func (p *Particles) AddFluids(positions []mgl32.Vec3, massPerParticle float32) error {
	if massPerParticle <= 0 {
		return fmt.Errorf("adding fluids: mass must be positive, got %g", massPerParticle)
	}
	if p.count+len(positions) > p.capacity {
		return fmt.Errorf("adding %d fluids at count %d/%d: %w",
			len(positions), p.count, p.capacity, ErrCapacityExceeded)
	}
	for _, pos := range positions {
		p.appendParticle(pos, massPerParticle, FluidPhase)
	}
	return nil
}

func (p *Particles) appendParticle(pos mgl32.Vec3, mass float32, phase int32) {
	i := p.count
	p.Position[i] = pos
	p.Predicted[i] = pos
	p.Velocity[i] = mgl32.Vec3{}
	p.Mass[i] = mass
	p.InvMass[i] = 1 / mass
	p.InvScaledMass[i] = 1 / mass
	p.Phase[i] = phase
	p.count++
}

func (p *Particles) freshPhase() int32 {
	ph := p.nextPhase
	p.nextPhase++
	return ph
}

// Packed refreshes and returns the renderer view of committed positions
// as tightly packed 4-vectors (xyz, w=0). The slice is only valid until
// the next solver update.
func (p *Particles) Packed() []mgl32.Vec4 {
	p.packed = p.packed[:p.count]
	for i := 0; i < p.count; i++ {
		pos := p.Position[i]
		p.packed[i] = mgl32.Vec4{pos[0], pos[1], pos[2], 0}
	}
	return p.packed
}

// swapPredicted exchanges the predicted and temp position buffers after
// a gathered position pass.
func (p *Particles) swapPredicted() {
	p.Predicted, p.Temp = p.Temp, p.Predicted
}

// swapVelocity exchanges the velocity and temp velocity buffers after a
// gathered velocity pass.
func (p *Particles) swapVelocity() {
	p.Velocity, p.TempVelocity = p.TempVelocity, p.Velocity
}
