package solver

import (
	"github.com/go-gl/mathgl/mgl32"
)

// shapeMatch snaps each rigid body's predicted particles onto the
// best-fit rigid transform of its reference shape. One body per
// dispatched index: the per-body reduction (centroid and covariance)
// stays local to the worker handling that body.
func (s *Solver) shapeMatch() {
	p := s.p
	bodies := p.bodies
	s.dev.Dispatch(len(bodies), func(start, end, _ int) {
		for b := start; b < end; b++ {
			body := &bodies[b]
			n := body.Hi - body.Lo
			if n == 0 {
				continue
			}

			// Current centroid of the predicted positions
			var c mgl32.Vec3
			for i := body.Lo; i < body.Hi; i++ {
				c = c.Add(p.Predicted[i])
			}
			c = c.Mul(1 / float32(n))

			// Covariance A = sum (predicted - c) * ref^T, by columns
			var a0, a1, a2 mgl32.Vec3
			for i := body.Lo; i < body.Hi; i++ {
				d := p.Predicted[i].Sub(c)
				r := body.Ref[i-body.Lo]
				a0 = a0.Add(d.Mul(r[0]))
				a1 = a1.Add(d.Mul(r[1]))
				a2 = a2.Add(d.Mul(r[2]))
			}

			body.Rotation = extractRotation(a0, a1, a2, body.Rotation)
			body.CenterOfMass = c

			// Snap: stiffness 1, the matched shape replaces the prediction
			for i := body.Lo; i < body.Hi; i++ {
				p.Predicted[i] = c.Add(body.Rotation.Rotate(body.Ref[i-body.Lo]))
			}
		}
	})
}

// extractRotation advances q one step toward the rotational part of the
// column matrix A (a0,a1,a2). Warm-starting from the previous substep's
// quaternion makes a single iteration enough per projection.
func extractRotation(a0, a1, a2 mgl32.Vec3, q mgl32.Quat) mgl32.Quat {
	r0 := q.Rotate(mgl32.Vec3{1, 0, 0})
	r1 := q.Rotate(mgl32.Vec3{0, 1, 0})
	r2 := q.Rotate(mgl32.Vec3{0, 0, 1})

	num := r0.Cross(a0).Add(r1.Cross(a1)).Add(r2.Cross(a2))
	den := absf(r0.Dot(a0)+r1.Dot(a1)+r2.Dot(a2)) + 1e-9

	omega := num.Mul(1 / den)
	angle := omega.Len()
	if angle < 1e-9 {
		return q
	}
	return mgl32.QuatRotate(angle, omega.Mul(1/angle)).Mul(q).Normalize()
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
