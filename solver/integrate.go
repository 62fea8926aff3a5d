package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane is a half-space collision boundary with the normal pointing into
// the allowed region.
type Plane struct {
	Origin mgl32.Vec3
	Normal mgl32.Vec3
}

// applyGravity integrates the external force into velocities.
func (s *Solver) applyGravity(dt float32) {
	p := s.p
	g := s.gravity.Mul(dt)
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			p.Velocity[i] = p.Velocity[i].Add(g)
		}
	})
}

// predict seeds the scratch positions with an explicit Euler step.
func (s *Solver) predict(dt float32) {
	p := s.p
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			p.Predicted[i] = p.Position[i].Add(p.Velocity[i].Mul(dt))
		}
	})
}

// computeShockMasses refreshes the scaled inverse masses. Lower
// particles get heavier effective mass during projection, which keeps
// tall stacks from bouncing apart.
func (s *Solver) computeShockMasses() {
	p := s.p
	k := float64(s.massScalingK)
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			scale := float32(math.Exp(-k * float64(p.Position[i][1])))
			p.InvScaledMass[i] = 1 / (scale * p.Mass[i])
		}
	})
}

// stabilize removes pre-existing plane interpenetration by shifting both
// committed and predicted positions. Moving the committed position here
// is deliberate: the shift must not generate velocity when the delta is
// reconstructed at substep end.
func (s *Solver) stabilize() {
	p := s.p
	for it := 0; it < s.stabilizeIters; it++ {
		for _, pl := range s.planes {
			origin, n := pl.Origin, pl.Normal
			s.dev.Dispatch(p.count, func(start, end, _ int) {
				for i := start; i < end; i++ {
					d := origin.Sub(p.Position[i]).Dot(n) + s.radius
					if d > 0 {
						shift := n.Mul(d)
						p.Position[i] = p.Position[i].Add(shift)
						p.Predicted[i] = p.Predicted[i].Add(shift)
					}
				}
			})
		}
	}
}

// updateVelocity reconstructs velocities from the projected delta.
func (s *Solver) updateVelocity(invDt float32) {
	p := s.p
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			p.Velocity[i] = p.Predicted[i].Sub(p.Position[i]).Mul(invDt)
		}
	})
}

// commitPositions copies predicted into committed positions. Fluids
// always commit; solids only when they moved past the sleep threshold,
// so resting stacks stay put.
func (s *Solver) commitPositions() {
	p := s.p
	eps2 := s.sleepEps * s.sleepEps
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] < 0 || p.Predicted[i].Sub(p.Position[i]).Dot(p.Predicted[i].Sub(p.Position[i])) >= eps2 {
				p.Position[i] = p.Predicted[i]
			}
		}
	})
}
