package solver

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Fluid velocity post-processing. These passes run once per substep on
// committed positions, after constraint projection. Each gathered pass
// writes the scratch velocity buffer and swaps; the in-place passes only
// write the particle's own velocity.

// computeOmega estimates the vorticity at each fluid particle from the
// velocity differences of its fluid neighbors.
func (s *Solver) computeOmega() {
	p := s.p
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				continue
			}
			pi := p.Position[i]
			vi := p.Velocity[i]

			var omega mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] >= 0 {
					return
				}
				dv := p.Velocity[j].Sub(vi)
				omega = omega.Add(dv.Cross(SpikyGrad(pi.Sub(p.Position[j]), s.h)))
			})
			p.Omega[i] = omega
		}
	})
}

// vorticityForce re-injects the rotational motion the projection damped
// out. The confinement direction is the normalized gradient of |omega|,
// estimated by differencing neighbor magnitudes.
func (s *Solver) vorticityForce(dt float32) {
	p := s.p
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				continue
			}
			pi := p.Position[i]
			wi := p.Omega[i].Len()

			var eta mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] >= 0 {
					return
				}
				dw := p.Omega[j].Len() - wi
				eta = eta.Add(SpikyGrad(pi.Sub(p.Position[j]), s.h).Mul(dw))
			})

			l := eta.Len()
			if l < 1e-9 {
				continue
			}
			f := eta.Mul(1 / l).Cross(p.Omega[i]).Mul(s.vorticityEps)
			p.Velocity[i] = p.Velocity[i].Add(f.Mul(dt))
		}
	})
}

// computeNormals estimates the fluid surface normal used by the
// curvature half of the cohesion force.
func (s *Solver) computeNormals() {
	p := s.p
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				continue
			}
			pi := p.Position[i]

			var n mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] >= 0 || p.Density[j] <= 0 {
					return
				}
				g := Poly6Grad(pi.Sub(p.Position[j]), s.h)
				n = n.Add(g.Mul(p.Mass[j] / p.Density[j]))
			})
			p.Normal[i] = n.Mul(s.h)
		}
	})
}

// akinciCohesion applies the pairwise cohesion and curvature forces.
// Deliberately integrated over the outer frame step rather than the
// substep: the force is weak and smoothly varying, and per-substep
// integration would just scale it down.
func (s *Solver) akinciCohesion(frameDt float32) {
	p := s.p
	gamma := s.cohesionGamma
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				p.TempVelocity[i] = p.Velocity[i]
				continue
			}
			pi := p.Position[i]
			di := p.Density[i]

			var force mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] >= 0 {
					return
				}
				r := pi.Sub(p.Position[j])
				dist := r.Len()
				if dist <= 0 {
					return
				}
				denom := di + p.Density[j]
				if denom <= 0 {
					return
				}
				k := 2 * s.restDensity / denom

				cohesion := r.Mul(-gamma * p.Mass[i] * p.Mass[j] * CohesionKernel(dist, s.h) / dist)
				curvature := p.Normal[i].Sub(p.Normal[j]).Mul(-gamma * p.Mass[i])
				force = force.Add(cohesion.Add(curvature).Mul(k))
			})
			p.TempVelocity[i] = p.Velocity[i].Add(force.Mul(frameDt * p.InvMass[i]))
		}
	})
	p.swapVelocity()
}

// xsphViscosity smooths fluid velocities toward the neighborhood
// average.
func (s *Solver) xsphViscosity() {
	p := s.p
	c := s.xsphC
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				p.TempVelocity[i] = p.Velocity[i]
				continue
			}
			pi := p.Position[i]
			vi := p.Velocity[i]

			var sum mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] >= 0 || p.Density[j] <= 0 {
					return
				}
				w := Poly6(pi.Sub(p.Position[j]), s.h) * p.Mass[j] / p.Density[j]
				sum = sum.Add(p.Velocity[j].Sub(vi).Mul(w))
			})
			p.TempVelocity[i] = vi.Add(sum.Mul(c))
		}
	})
	p.swapVelocity()
}
