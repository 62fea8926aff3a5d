// Package scene describes the initial contents of a simulation: capacities,
// collision planes, rigid bodies, granular groups, and fluid groups.
// Scenes are authored as YAML and consumed once at solver construction.
package scene

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// Scene holds a full scene description.
type Scene struct {
	MaxParticles   int     `yaml:"max_particles"`
	MaxBodies      int     `yaml:"max_bodies"`
	ParticleRadius float64 `yaml:"particle_radius"`
	RestDensity    float64 `yaml:"rest_density"`

	Planes    []Plane `yaml:"planes"`
	Bodies    []Body  `yaml:"bodies"`
	Granulars []Group `yaml:"granulars"`
	Fluids    []Group `yaml:"fluids"`
}

// Plane is a half-space collision boundary. Normal points into the
// allowed region and is normalized on load.
type Plane struct {
	Origin [3]float64 `yaml:"origin"`
	Normal [3]float64 `yaml:"normal"`
}

// Body describes one rigid body: either explicit particle positions or a
// box lattice. Box lattices derive their reference shape automatically.
type Body struct {
	Positions [][3]float64 `yaml:"positions"`
	Box       *Box         `yaml:"box"`
	Mass      float64      `yaml:"mass"` // per particle
}

// Group describes a granular or fluid particle group.
type Group struct {
	Positions [][3]float64 `yaml:"positions"`
	Box       *Box         `yaml:"box"`
	Mass      float64      `yaml:"mass"` // per particle
}

// Box is a lattice of particles: Counts per axis, spaced by Spacing,
// centered on Center. Jitter displaces each particle by up to that
// fraction of the spacing along each axis.
type Box struct {
	Center  [3]float64 `yaml:"center"`
	Counts  [3]int     `yaml:"counts"`
	Spacing float64    `yaml:"spacing"`
	Jitter  float64    `yaml:"jitter"`
}

// Load reads and validates a scene from a YAML file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	sc := &Scene{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parsing scene file: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the scene for values the solver cannot construct from.
// Plane normals are normalized in place.
func (s *Scene) Validate() error {
	if s.MaxParticles < 1 {
		return fmt.Errorf("scene: max_particles must be >= 1, got %d", s.MaxParticles)
	}
	if s.MaxBodies < 0 {
		return fmt.Errorf("scene: max_bodies must be >= 0, got %d", s.MaxBodies)
	}
	if s.ParticleRadius <= 0 {
		return fmt.Errorf("scene: particle_radius must be positive, got %g", s.ParticleRadius)
	}
	if len(s.Fluids) > 0 && s.RestDensity <= 0 {
		return fmt.Errorf("scene: rest_density must be positive with fluids present, got %g", s.RestDensity)
	}
	for i := range s.Planes {
		n := s.Planes[i].Normal
		l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if l < 1e-9 {
			return fmt.Errorf("scene: plane %d has zero normal", i)
		}
		for k := 0; k < 3; k++ {
			s.Planes[i].Normal[k] = n[k] / l
		}
	}
	for i, b := range s.Bodies {
		if b.Mass <= 0 {
			return fmt.Errorf("scene: body %d mass must be positive, got %g", i, b.Mass)
		}
		if (b.Box == nil) == (len(b.Positions) == 0) {
			return fmt.Errorf("scene: body %d needs exactly one of box or positions", i)
		}
	}
	for i, g := range s.Granulars {
		if g.Mass <= 0 {
			return fmt.Errorf("scene: granular group %d mass must be positive, got %g", i, g.Mass)
		}
		if (g.Box == nil) == (len(g.Positions) == 0) {
			return fmt.Errorf("scene: granular group %d needs exactly one of box or positions", i)
		}
	}
	for i, g := range s.Fluids {
		if g.Mass <= 0 {
			return fmt.Errorf("scene: fluid group %d mass must be positive, got %g", i, g.Mass)
		}
		if (g.Box == nil) == (len(g.Positions) == 0) {
			return fmt.Errorf("scene: fluid group %d needs exactly one of box or positions", i)
		}
	}
	return nil
}

// Expand returns the world positions of a box lattice. rng is used for
// jitter; pass nil for a deterministic unjittered lattice.
func (b *Box) Expand(rng *rand.Rand) []mgl32.Vec3 {
	nx, ny, nz := b.Counts[0], b.Counts[1], b.Counts[2]
	if nx < 1 || ny < 1 || nz < 1 {
		return nil
	}
	out := make([]mgl32.Vec3, 0, nx*ny*nz)
	sp := b.Spacing
	// Lattice centered on Center
	off := [3]float64{
		b.Center[0] - sp*float64(nx-1)/2,
		b.Center[1] - sp*float64(ny-1)/2,
		b.Center[2] - sp*float64(nz-1)/2,
	}
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				p := mgl32.Vec3{
					float32(off[0] + float64(x)*sp),
					float32(off[1] + float64(y)*sp),
					float32(off[2] + float64(z)*sp),
				}
				if rng != nil && b.Jitter > 0 {
					j := float32(b.Jitter * sp)
					p = p.Add(mgl32.Vec3{
						(rng.Float32()*2 - 1) * j,
						(rng.Float32()*2 - 1) * j,
						(rng.Float32()*2 - 1) * j,
					})
				}
				out = append(out, p)
			}
		}
	}
	return out
}

// GroupPositions resolves a group to world positions.
func GroupPositions(g *Group, rng *rand.Rand) []mgl32.Vec3 {
	if g.Box != nil {
		return g.Box.Expand(rng)
	}
	out := make([]mgl32.Vec3, len(g.Positions))
	for i, p := range g.Positions {
		out[i] = mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	return out
}

// BodyPositions resolves a rigid body to world positions and matching
// reference positions with a zero centroid. Rigid lattices never
// jitter; the reference shape is exact.
func BodyPositions(b *Body) (world, ref []mgl32.Vec3) {
	if b.Box != nil {
		world = b.Box.Expand(nil)
	} else {
		world = make([]mgl32.Vec3, len(b.Positions))
		for i, p := range b.Positions {
			world[i] = mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
		}
	}
	ref = Centered(world)
	return world, ref
}

// Centered returns a copy of positions translated so their centroid is
// the origin.
func Centered(positions []mgl32.Vec3) []mgl32.Vec3 {
	if len(positions) == 0 {
		return nil
	}
	var c mgl32.Vec3
	for _, p := range positions {
		c = c.Add(p)
	}
	c = c.Mul(1 / float32(len(positions)))
	out := make([]mgl32.Vec3, len(positions))
	for i, p := range positions {
		out[i] = p.Sub(c)
	}
	return out
}
