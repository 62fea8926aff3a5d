package telemetry

import (
	"log/slog"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat"
)

// FrameStats holds aggregated simulation statistics at one frame.
type FrameStats struct {
	Frame   int32   `csv:"frame"`
	SimTime float64 `csv:"sim_time"`

	Particles int `csv:"particles"`
	Fluids    int `csv:"fluids"`
	Solids    int `csv:"solids"`
	Bodies    int `csv:"bodies"`

	KineticEnergy float64 `csv:"kinetic_energy"`
	MeanSpeed     float64 `csv:"mean_speed"`
	MaxSpeed      float64 `csv:"max_speed"`
	SpeedP90      float64 `csv:"speed_p90"`

	// Fraction of solid particles below the sleep speed
	SleepingFraction float64 `csv:"sleeping_fraction"`
}

// CollectFrameStats aggregates particle state into a FrameStats record.
// velocity, mass and phase are the live prefixes of the solver arrays;
// sleepSpeed is the velocity magnitude below which a solid counts as
// sleeping.
func CollectFrameStats(frame int32, simTime float64, velocity []mgl32.Vec3, mass []float32, phase []int32, bodies int, sleepSpeed float64) FrameStats {
	st := FrameStats{
		Frame:     frame,
		SimTime:   simTime,
		Particles: len(velocity),
		Bodies:    bodies,
	}

	if len(velocity) == 0 {
		return st
	}

	speeds := make([]float64, len(velocity))
	var sleeping, solids int
	for i, v := range velocity {
		s := float64(v.Len())
		speeds[i] = s
		st.KineticEnergy += 0.5 * float64(mass[i]) * s * s
		if s > st.MaxSpeed {
			st.MaxSpeed = s
		}
		if phase[i] < 0 {
			st.Fluids++
		} else {
			solids++
			if s < sleepSpeed {
				sleeping++
			}
		}
	}
	st.Solids = solids

	st.MeanSpeed = stat.Mean(speeds, nil)
	sort.Float64s(speeds)
	st.SpeedP90 = stat.Quantile(0.9, stat.Empirical, speeds, nil)

	if solids > 0 {
		st.SleepingFraction = float64(sleeping) / float64(solids)
	}
	return st
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("frame", int64(s.Frame)),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Int("fluids", s.Fluids),
		slog.Int("solids", s.Solids),
		slog.Int("bodies", s.Bodies),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("sleeping_fraction", s.SleepingFraction),
	)
}
