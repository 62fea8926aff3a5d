package scene

import (
	"math"
	"math/rand"
	"testing"
)

func TestBoxExpand(t *testing.T) {
	b := &Box{
		Center:  [3]float64{1, 2, 3},
		Counts:  [3]int{2, 3, 4},
		Spacing: 0.1,
	}

	got := b.Expand(nil)
	if len(got) != 24 {
		t.Fatalf("len = %d, want 24", len(got))
	}

	// Lattice is centered on Center
	var c [3]float64
	for _, p := range got {
		c[0] += float64(p[0])
		c[1] += float64(p[1])
		c[2] += float64(p[2])
	}
	for k := 0; k < 3; k++ {
		c[k] /= float64(len(got))
		if math.Abs(c[k]-b.Center[k]) > 1e-5 {
			t.Errorf("centroid[%d] = %v, want %v", k, c[k], b.Center[k])
		}
	}
}

func TestBoxExpandJitterBounded(t *testing.T) {
	b := &Box{
		Center:  [3]float64{0, 0, 0},
		Counts:  [3]int{3, 3, 3},
		Spacing: 0.1,
		Jitter:  0.5,
	}

	plain := b.Expand(nil)
	jittered := b.Expand(rand.New(rand.NewSource(1)))

	maxOffset := float32(b.Jitter * b.Spacing)
	for i := range plain {
		d := jittered[i].Sub(plain[i])
		for k := 0; k < 3; k++ {
			if d[k] > maxOffset || d[k] < -maxOffset {
				t.Fatalf("particle %d jitter %v exceeds %v", i, d, maxOffset)
			}
		}
	}
}

func TestBodyPositionsCentersReference(t *testing.T) {
	b := &Body{
		Positions: [][3]float64{{1, 1, 1}, {1.2, 1, 1}, {1, 1.2, 1}},
		Mass:      1,
	}

	world, ref := BodyPositions(b)
	if len(world) != len(ref) {
		t.Fatalf("world/ref length mismatch: %d vs %d", len(world), len(ref))
	}

	var c [3]float32
	for _, r := range ref {
		c[0] += r[0]
		c[1] += r[1]
		c[2] += r[2]
	}
	for k := 0; k < 3; k++ {
		if math.Abs(float64(c[k])) > 1e-5 {
			t.Errorf("reference centroid component %d = %v, want 0", k, c[k])
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Scene {
		return &Scene{
			MaxParticles: 100, ParticleRadius: 0.05, RestDensity: 6378,
			Planes: []Plane{{Origin: [3]float64{0, 0, 0}, Normal: [3]float64{0, 2, 0}}},
			Fluids: []Group{{Positions: [][3]float64{{0, 1, 0}}, Mass: 1}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scene)
		wantErr bool
	}{
		{"valid scene", func(s *Scene) {}, false},
		{"zero capacity", func(s *Scene) { s.MaxParticles = 0 }, true},
		{"zero radius", func(s *Scene) { s.ParticleRadius = 0 }, true},
		{"zero normal", func(s *Scene) { s.Planes[0].Normal = [3]float64{} }, true},
		{"fluid without rest density", func(s *Scene) { s.RestDensity = 0 }, true},
		{"group with neither box nor positions", func(s *Scene) { s.Fluids[0].Positions = nil }, true},
		{"group with both box and positions", func(s *Scene) {
			s.Fluids[0].Box = &Box{Counts: [3]int{1, 1, 1}, Spacing: 0.1}
		}, true},
		{"non-positive mass", func(s *Scene) { s.Fluids[0].Mass = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("normalizes plane normals", func(t *testing.T) {
		s := valid()
		if err := s.Validate(); err != nil {
			t.Fatal(err)
		}
		n := s.Planes[0].Normal
		l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if math.Abs(l-1) > 1e-9 {
			t.Errorf("normal length = %v, want 1", l)
		}
	})
}
