// Package solver implements a position-based dynamics solver for unified
// rigid, granular, and fluid particle matter. Constraints are projected
// directly on predicted positions each substep; velocity is reconstructed
// from the committed delta.
package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SPH smoothing kernels with compact support h. All of them treat
// |r| >= h as exact zero and guard the |r| = 0 singularity, so neighbor
// sums stay finite no matter how particles cluster.

// Poly6 is the standard density estimation kernel.
func Poly6(r mgl32.Vec3, h float32) float32 {
	r2 := r.Dot(r)
	h2 := h * h
	if r2 >= h2 {
		return 0
	}
	d := h2 - r2
	return 315.0 / (64.0 * math.Pi * pow9(h)) * d * d * d
}

// Poly6Grad is the gradient of Poly6 with respect to r.
func Poly6Grad(r mgl32.Vec3, h float32) mgl32.Vec3 {
	r2 := r.Dot(r)
	h2 := h * h
	if r2 >= h2 {
		return mgl32.Vec3{}
	}
	d := h2 - r2
	s := -945.0 / (32.0 * math.Pi * pow9(h)) * d * d
	return r.Mul(s)
}

// SpikyGrad is the gradient of the spiky kernel, used for pressure-like
// terms because its magnitude does not vanish as |r| approaches zero.
// At exactly |r| = 0 it returns the zero vector (no direction exists).
func SpikyGrad(r mgl32.Vec3, h float32) mgl32.Vec3 {
	rl := r.Len()
	if rl <= 0 || rl >= h {
		return mgl32.Vec3{}
	}
	d := h - rl
	s := -45.0 / (math.Pi * pow6(h)) * d * d / rl
	return r.Mul(s)
}

// CohesionKernel is the Akinci surface tension spline over the scalar
// distance rl.
func CohesionKernel(rl, h float32) float32 {
	if rl <= 0 || rl >= h {
		return 0
	}
	d := h - rl
	c := d * d * d * rl * rl * rl
	k := 32.0 / (math.Pi * pow9(h))
	if 2*rl > h {
		return k * c
	}
	h6 := pow6(h)
	return k * (2*c - h6/64.0)
}

func pow6(h float32) float32 {
	h2 := h * h
	return h2 * h2 * h2
}

func pow9(h float32) float32 {
	h3 := h * h * h
	return h3 * h3 * h3
}
