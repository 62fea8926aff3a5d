package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Grid is the broad-phase uniform grid. It is rebuilt from predicted
// positions every outer constraint iteration: cell ids are assigned,
// (cellId, particleId) pairs are radix sorted, and per-cell start
// offsets are compacted. Particles outside the grid clamp into the
// boundary cells; the containment planes keep that rare.
type Grid struct {
	origin   mgl32.Vec3
	cellSize float32
	dims     [3]int32

	cellStart []int32  // per cell: first index into the sorted pairs, -1 if empty
	keys      []uint64 // sorted (cellId << 32 | particleId) pairs
	n         int      // live pair count

	scratch []uint64 // radix sort scratch, grows monotonically
}

// NewGrid creates a grid of dims cells anchored at origin. cellSize
// should match the kernel support so a one-cell search radius covers it.
func NewGrid(origin mgl32.Vec3, dims [3]int, cellSize float32, capacity int) *Grid {
	d := [3]int32{int32(dims[0]), int32(dims[1]), int32(dims[2])}
	return &Grid{
		origin:   origin,
		cellSize: cellSize,
		dims:     d,
		cellStart: make([]int32, int(d[0])*int(d[1])*int(d[2])),
		keys:      make([]uint64, 0, capacity),
	}
}

// CellSize returns the grid cell edge length.
func (g *Grid) CellSize() float32 {
	return g.cellSize
}

// cellCoords maps a world position to clamped cell coordinates.
func (g *Grid) cellCoords(p mgl32.Vec3) (int32, int32, int32) {
	x := clampCell(int32(floorf((p[0]-g.origin[0])/g.cellSize)), g.dims[0])
	y := clampCell(int32(floorf((p[1]-g.origin[1])/g.cellSize)), g.dims[1])
	z := clampCell(int32(floorf((p[2]-g.origin[2])/g.cellSize)), g.dims[2])
	return x, y, z
}

func clampCell(c, dim int32) int32 {
	if c < 0 {
		return 0
	}
	if c >= dim {
		return dim - 1
	}
	return c
}

func floorf(v float32) float32 {
	return float32(math.Floor(float64(v)))
}

// cellID linearizes cell coordinates.
func (g *Grid) cellID(x, y, z int32) uint32 {
	return uint32((x*g.dims[1]+y)*g.dims[2] + z)
}

// Build rebuilds the grid from the first n predicted positions.
func (g *Grid) Build(predicted []mgl32.Vec3, n int) {
	g.n = n

	for i := range g.cellStart {
		g.cellStart[i] = -1
	}
	if n == 0 {
		g.keys = g.keys[:0]
		return
	}

	g.keys = g.keys[:n]
	for i := 0; i < n; i++ {
		x, y, z := g.cellCoords(predicted[i])
		g.keys[i] = uint64(g.cellID(x, y, z))<<32 | uint64(uint32(i))
	}

	g.sortKeys()

	g.cellStart[g.SortedCellID(0)] = 0
	for k := 1; k < n; k++ {
		if g.SortedCellID(k) != g.SortedCellID(k-1) {
			g.cellStart[g.SortedCellID(k)] = int32(k)
		}
	}
}

// sortKeys radix sorts the pairs by cell id (the high 32 bits). Low bits
// hold the particle id, so equal cells keep ascending particle order and
// rebuilds are bit-reproducible. Four 8-bit passes land the result back
// in g.keys.
func (g *Grid) sortKeys() {
	n := len(g.keys)
	if cap(g.scratch) < n {
		g.scratch = make([]uint64, n)
	}
	src := g.keys
	dst := g.scratch[:n]

	for shift := uint(32); shift < 64; shift += 8 {
		var counts [256]int
		for _, k := range src {
			counts[(k>>shift)&0xff]++
		}
		if counts[(src[0]>>shift)&0xff] == n {
			// Single bucket, pass is the identity
			continue
		}
		sum := 0
		for b := 0; b < 256; b++ {
			c := counts[b]
			counts[b] = sum
			sum += c
		}
		for _, k := range src {
			b := (k >> shift) & 0xff
			dst[counts[b]] = k
			counts[b]++
		}
		src, dst = dst, src
	}

	if &src[0] != &g.keys[0] {
		copy(g.keys, src)
	}
}

// SortedCellID returns the cell id of sorted pair k.
func (g *Grid) SortedCellID(k int) uint32 {
	return uint32(g.keys[k] >> 32)
}

// SortedParticleID returns the particle id of sorted pair k.
func (g *Grid) SortedParticleID(k int) int32 {
	return int32(uint32(g.keys[k]))
}

// CellStart returns the per-cell start offsets of the latest build.
func (g *Grid) CellStart() []int32 {
	return g.cellStart
}

// ForEachNeighbor calls fn for every particle whose cell is within
// radius cells of pos's cell, including the particle in pos's own cell.
// fn may be called with the querying particle itself; callers filter.
func (g *Grid) ForEachNeighbor(pos mgl32.Vec3, radius int32, fn func(j int32)) {
	cx, cy, cz := g.cellCoords(pos)

	x0, x1 := clampCell(cx-radius, g.dims[0]), clampCell(cx+radius, g.dims[0])
	y0, y1 := clampCell(cy-radius, g.dims[1]), clampCell(cy+radius, g.dims[1])
	z0, z1 := clampCell(cz-radius, g.dims[2]), clampCell(cz+radius, g.dims[2])

	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				c := g.cellID(x, y, z)
				k := g.cellStart[c]
				if k < 0 {
					continue
				}
				for int(k) < g.n && g.SortedCellID(int(k)) == c {
					fn(g.SortedParticleID(int(k)))
					k++
				}
			}
		}
	}
}
