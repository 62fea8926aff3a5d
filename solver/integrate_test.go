package solver

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/squish/scene"
)

func TestApplyGravityAndPredict(t *testing.T) {
	sc := &scene.Scene{
		MaxParticles: 16, ParticleRadius: 0.05,
		Granulars: []scene.Group{{Positions: [][3]float64{{0, 1, 0}}, Mass: 1}},
	}
	s := buildSolver(t, sc, testConfig(t))
	p := s.Particles()

	dt := float32(0.1)
	s.applyGravity(dt)
	if got, want := p.Velocity[0][1], float32(-0.98); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("velocity.y = %v, want %v", got, want)
	}

	s.predict(dt)
	if got, want := p.Predicted[0][1], float32(1-0.098); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("predicted.y = %v, want %v", got, want)
	}
	if p.Position[0][1] != 1 {
		t.Errorf("committed position moved during prediction: %v", p.Position[0])
	}
}

func TestComputeShockMasses(t *testing.T) {
	sc := &scene.Scene{
		MaxParticles: 16, ParticleRadius: 0.05,
		Granulars: []scene.Group{{
			Positions: [][3]float64{{0, 0.1, 0}, {0, 0.5, 0}, {0, 2.0, 0}},
			Mass:      2,
		}},
	}
	s := buildSolver(t, sc, testConfig(t))
	p := s.Particles()

	s.computeShockMasses()

	// Lower particles get smaller inverse mass (heavier) during projection
	if !(p.InvScaledMass[0] < p.InvScaledMass[1] && p.InvScaledMass[1] < p.InvScaledMass[2]) {
		t.Errorf("scaled inverse masses not increasing with height: %v %v %v",
			p.InvScaledMass[0], p.InvScaledMass[1], p.InvScaledMass[2])
	}

	// Default scaling constant is 4
	want := 1 / (float32(math.Exp(-4*0.1)) * 2)
	if math.Abs(float64(p.InvScaledMass[0]-want)) > 1e-4 {
		t.Errorf("invScaledMass[0] = %v, want %v", p.InvScaledMass[0], want)
	}
}

func TestStabilizeLiftsPenetration(t *testing.T) {
	sc := &scene.Scene{
		MaxParticles: 16, ParticleRadius: 0.05,
		Planes:    []scene.Plane{{Origin: [3]float64{0, 0, 0}, Normal: [3]float64{0, 1, 0}}},
		Granulars: []scene.Group{{Positions: [][3]float64{{0, 0.02, 0}}, Mass: 1}},
	}
	s := buildSolver(t, sc, testConfig(t))
	p := s.Particles()

	s.stabilize()

	// Penetration is removed from both buffers, no velocity generated
	if got := p.Position[0][1]; math.Abs(float64(got-0.05)) > 1e-5 {
		t.Errorf("position.y = %v, want 0.05", got)
	}
	if got := p.Predicted[0][1]; math.Abs(float64(got-0.05)) > 1e-5 {
		t.Errorf("predicted.y = %v, want 0.05", got)
	}
	if v := p.Velocity[0].Len(); v != 0 {
		t.Errorf("stabilization generated velocity %v", v)
	}
}

func TestCommitRespectsSleepThreshold(t *testing.T) {
	sc := &scene.Scene{
		MaxParticles: 16, ParticleRadius: 0.05, RestDensity: 6378,
		Granulars: []scene.Group{{Positions: [][3]float64{{0, 1, 0}}, Mass: 1}},
		Fluids:    []scene.Group{{Positions: [][3]float64{{2, 1, 0}}, Mass: 1}},
	}
	s := buildSolver(t, sc, testConfig(t))
	p := s.Particles()

	// Below-threshold move: solid stays, fluid commits
	tiny := mgl32.Vec3{1e-5, 0, 0}
	p.Predicted[0] = p.Position[0].Add(tiny)
	p.Predicted[1] = p.Position[1].Add(tiny)
	s.commitPositions()

	if p.Position[0][0] != 0 {
		t.Errorf("sleeping solid committed a sub-threshold move: %v", p.Position[0])
	}
	if p.Position[1][0] != 2+1e-5 {
		t.Errorf("fluid did not commit: %v", p.Position[1])
	}

	// Above-threshold move commits for solids too
	p.Predicted[0] = p.Position[0].Add(mgl32.Vec3{0.01, 0, 0})
	s.commitPositions()
	if p.Position[0][0] != 0.01 {
		t.Errorf("solid did not commit an above-threshold move: %v", p.Position[0])
	}
}
