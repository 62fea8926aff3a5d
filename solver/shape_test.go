package solver

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/squish/scene"
)

func rigidBoxScene() *scene.Scene {
	return &scene.Scene{
		MaxParticles: 64, MaxBodies: 1, ParticleRadius: 0.05,
		Bodies: []scene.Body{{
			Box:  &scene.Box{Center: [3]float64{0, 1, 0}, Counts: [3]int{2, 2, 2}, Spacing: 0.1},
			Mass: 1,
		}},
	}
}

func TestShapeMatchIdentity(t *testing.T) {
	s := buildSolver(t, rigidBoxScene(), testConfig(t))
	p := s.Particles()

	before := make([]mgl32.Vec3, p.Count())
	copy(before, p.Predicted[:p.Count()])

	s.shapeMatch()

	// The reference shape is a fixed point
	for i := range before {
		if d := p.Predicted[i].Sub(before[i]).Len(); d > 1e-5 {
			t.Errorf("particle %d moved %v under identity match", i, d)
		}
	}
	q := p.Bodies()[0].Rotation
	if math.Abs(float64(q.W-1)) > 1e-5 {
		t.Errorf("rotation drifted from identity: %v", q)
	}
}

func TestShapeMatchTranslation(t *testing.T) {
	s := buildSolver(t, rigidBoxScene(), testConfig(t))
	p := s.Particles()

	offset := mgl32.Vec3{0.3, -0.1, 0.2}
	for i := 0; i < p.Count(); i++ {
		p.Predicted[i] = p.Position[i].Add(offset)
	}

	s.shapeMatch()

	for i := 0; i < p.Count(); i++ {
		want := p.Position[i].Add(offset)
		if d := p.Predicted[i].Sub(want).Len(); d > 1e-5 {
			t.Errorf("particle %d = %v, want pure translation %v", i, p.Predicted[i], want)
		}
	}

	com := p.Bodies()[0].CenterOfMass
	want := mgl32.Vec3{0.3, 0.9, 0.2}
	if d := com.Sub(want).Len(); d > 1e-5 {
		t.Errorf("center of mass = %v, want %v", com, want)
	}
}

func TestShapeMatchRigidity(t *testing.T) {
	s := buildSolver(t, rigidBoxScene(), testConfig(t))
	p := s.Particles()
	body := p.Bodies()[0]

	// Rotate the prediction 10 degrees about y and perturb each particle
	rot := mgl32.QuatRotate(float32(10*math.Pi/180), mgl32.Vec3{0, 1, 0})
	center := mgl32.Vec3{0, 1, 0}
	noise := []float32{0.004, -0.003, 0.002, -0.004, 0.003, -0.002, 0.004, -0.003}
	for i := body.Lo; i < body.Hi; i++ {
		ref := body.Ref[i-body.Lo]
		p.Predicted[i] = center.Add(rot.Rotate(ref)).Add(mgl32.Vec3{noise[i-body.Lo], 0, 0})
	}

	s.shapeMatch()

	// Pairwise distances must match the reference shape again
	for i := body.Lo; i < body.Hi; i++ {
		for j := i + 1; j < body.Hi; j++ {
			got := p.Predicted[i].Sub(p.Predicted[j]).Len()
			want := body.Ref[i-body.Lo].Sub(body.Ref[j-body.Lo]).Len()
			if math.Abs(float64(got-want)) > 1e-4 {
				t.Errorf("distance %d-%d = %v, want %v", i, j, got, want)
			}
		}
	}

	// The extracted rotation is orthonormal
	q := p.Bodies()[0].Rotation
	cols := []mgl32.Vec3{
		q.Rotate(mgl32.Vec3{1, 0, 0}),
		q.Rotate(mgl32.Vec3{0, 1, 0}),
		q.Rotate(mgl32.Vec3{0, 0, 1}),
	}
	r := mat.NewDense(3, 3, nil)
	for c, col := range cols {
		for row := 0; row < 3; row++ {
			r.Set(row, c, float64(col[row]))
		}
	}
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > 1e-4 {
				t.Errorf("R^T R [%d,%d] = %v, want %v", i, j, rtr.At(i, j), want)
			}
		}
	}
}

func TestExtractRotationConvergesToTarget(t *testing.T) {
	// Iterating the one-step extraction must approach the true rotation
	target := mgl32.QuatRotate(float32(30*math.Pi/180), mgl32.Vec3{0, 0, 1})

	// Columns of A for a pure rotation of an axis-aligned unit frame
	a0 := target.Rotate(mgl32.Vec3{1, 0, 0})
	a1 := target.Rotate(mgl32.Vec3{0, 1, 0})
	a2 := target.Rotate(mgl32.Vec3{0, 0, 1})

	q := mgl32.QuatIdent()
	for i := 0; i < 20; i++ {
		q = extractRotation(a0, a1, a2, q)
	}

	// Compare by rotating a probe vector
	probe := mgl32.Vec3{1, 0.5, -0.25}
	if d := q.Rotate(probe).Sub(target.Rotate(probe)).Len(); d > 1e-3 {
		t.Errorf("converged rotation differs from target by %v", d)
	}
}
