package solver

import (
	"github.com/go-gl/mathgl/mgl32"
)

// planeConstraint projects penetrating predicted positions back onto
// each plane. The small committed-position nudge along the normal bleeds
// off tangential drift, which reads as friction without a contact model.
func (s *Solver) planeConstraint() {
	p := s.p
	for _, pl := range s.planes {
		origin, n := pl.Origin, pl.Normal
		s.dev.Dispatch(p.count, func(start, end, _ int) {
			for i := start; i < end; i++ {
				d := origin.Sub(p.Predicted[i]).Dot(n) + s.radius
				if d > 0 {
					p.Predicted[i] = p.Predicted[i].Add(n.Mul(d))
					nudge := (2*p.Predicted[i].Sub(p.Position[i]).Dot(n) + d) / 10
					p.Position[i] = p.Position[i].Add(n.Mul(nudge))
				}
			}
		})
	}
}

// solidCollision separates overlapping solid particles of different
// phases. Gathered: each particle sums its own correction from the grid
// and writes the temp buffer, then buffers swap. Corrections are
// weighted by the shock-scaled inverse masses.
func (s *Solver) solidCollision() {
	p := s.p
	diameter := 2 * s.radius
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] < 0 {
				p.Temp[i] = p.Predicted[i]
				continue
			}
			pi := p.Predicted[i]
			wi := p.InvScaledMass[i]
			var delta mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i || p.Phase[j] == p.Phase[i] || p.Phase[j] < 0 {
					return
				}
				d := pi.Sub(p.Predicted[j])
				dist := d.Len()
				if dist <= 0 || dist >= diameter {
					return
				}
				w := wi / (wi + p.InvScaledMass[j])
				delta = delta.Add(d.Mul(w * (diameter - dist) / dist))
			})
			p.Temp[i] = pi.Add(delta)
		}
	})
	p.swapPredicted()
}

// fluidLambda computes the SPH density and the density-constraint
// multiplier for every fluid particle. Solid neighbors contribute mass
// to the density (one-way coupling) but keep lambda zero.
func (s *Solver) fluidLambda() {
	p := s.p
	invRho0 := 1 / s.restDensity
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				continue
			}
			pi := p.Predicted[i]

			var density float32
			var gradI mgl32.Vec3
			var gradSum float32
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				r := pi.Sub(p.Predicted[j])
				density += p.Mass[j] * Poly6(r, s.h)
				if int(j) == i {
					return
				}
				gradJ := SpikyGrad(r, s.h).Mul(invRho0)
				gradI = gradI.Add(gradJ)
				gradSum += gradJ.Dot(gradJ)
			})

			p.Density[i] = density
			c := density*invRho0 - 1
			denom := gradI.Dot(gradI) + gradSum
			p.Lambda[i] = -c / (denom + s.relaxation)
		}
	})
}

// fluidPosition applies the lambda-weighted position correction with the
// sCorr anti-clustering term, gathered into the temp buffer.
func (s *Solver) fluidPosition() {
	p := s.p
	invRho0 := 1 / s.restDensity
	s.dev.Dispatch(p.count, func(start, end, _ int) {
		for i := start; i < end; i++ {
			if p.Phase[i] >= 0 {
				p.Temp[i] = p.Predicted[i]
				continue
			}
			pi := p.Predicted[i]
			li := p.Lambda[i]

			var delta mgl32.Vec3
			s.grid.ForEachNeighbor(pi, 1, func(j int32) {
				if int(j) == i {
					return
				}
				r := pi.Sub(p.Predicted[j])
				w := Poly6(r, s.h) / s.sCorrDenom
				sCorr := -s.sCorrK * powN(w, s.sCorrN)
				// Solid neighbors carry lambda 0
				delta = delta.Add(SpikyGrad(r, s.h).Mul(li + p.Lambda[j] + sCorr))
			})
			p.Temp[i] = pi.Add(delta.Mul(invRho0))
		}
	})
	p.swapPredicted()
}

// powN raises v to a small non-negative integer power.
func powN(v float32, n int) float32 {
	out := float32(1)
	for k := 0; k < n; k++ {
		out *= v
	}
	return out
}
