package terrain

import (
	"sort"

	"tickworld.ai/internal/sim/geom"
)

// Surface codes used by the rulesets.
const (
	SurfaceRock  = 0
	SurfaceSand  = 1
	SurfaceEarth = 2
	SurfaceSilt  = 3
	SurfaceSnow  = 4
)

// Terrain is the collaborator handlers consult for ground queries.
type Terrain interface {
	Surface(x, z float64) int
	Normal(x, z float64) geom.Vector3
	FindMods(p geom.Point3) []*Mod
}

type Shape struct {
	Type   string       `json:"type"`
	Points [][2]float64 `json:"points"`
}

// Mod is a positioned terrain modification. Callers get the live record from
// FindMods and may amend it in place.
type Mod struct {
	ID     string
	Name   string
	Type   string
	Pos    geom.Point3
	Radius float64
	Height float64
	Shape  Shape
}

// Grid is an in-memory terrain: one surface code and height per unit cell,
// with a default for cells never set.
type Grid struct {
	DefaultSurface int

	surfaces map[[2]int]int
	heights  map[[2]int]float64
	mods     []*Mod
}

func NewGrid(defaultSurface int) *Grid {
	return &Grid{
		DefaultSurface: defaultSurface,
		surfaces:       map[[2]int]int{},
		heights:        map[[2]int]float64{},
	}
}

func (g *Grid) SetSurface(x, z float64, code int) {
	cx, cz := geom.Cell(x, z)
	g.surfaces[[2]int{cx, cz}] = code
}

func (g *Grid) SetHeight(x, z float64, h float64) {
	cx, cz := geom.Cell(x, z)
	g.heights[[2]int{cx, cz}] = h
}

func (g *Grid) Surface(x, z float64) int {
	cx, cz := geom.Cell(x, z)
	if c, ok := g.surfaces[[2]int{cx, cz}]; ok {
		return c
	}
	return g.DefaultSurface
}

func (g *Grid) height(cx, cz int) float64 {
	return g.heights[[2]int{cx, cz}]
}

// Normal is a central-difference estimate over neighbouring cells (Y up).
func (g *Grid) Normal(x, z float64) geom.Vector3 {
	cx, cz := geom.Cell(x, z)
	dx := g.height(cx-1, cz) - g.height(cx+1, cz)
	dz := g.height(cx, cz-1) - g.height(cx, cz+1)
	return geom.Vector3{X: dx, Y: 2, Z: dz}
}

// AddMod registers a modification. Re-adding an id replaces the record.
func (g *Grid) AddMod(m *Mod) {
	for i, cur := range g.mods {
		if cur.ID == m.ID {
			g.mods[i] = m
			return
		}
	}
	g.mods = append(g.mods, m)
}

func (g *Grid) RemoveMod(id string) {
	for i, cur := range g.mods {
		if cur.ID == id {
			g.mods = append(g.mods[:i], g.mods[i+1:]...)
			return
		}
	}
}

// FindMods returns the modifications covering p in registration order.
func (g *Grid) FindMods(p geom.Point3) []*Mod {
	var out []*Mod
	for _, m := range g.mods {
		if geom.DistXZ(m.Pos, p) <= m.Radius {
			out = append(out, m)
		}
	}
	return out
}

func (g *Grid) Mods() []*Mod {
	return append([]*Mod(nil), g.mods...)
}

type CellValue[T any] struct {
	X, Z  int
	Value T
}

// Cells lists explicitly set surfaces and heights in a stable order.
func (g *Grid) Cells() (surfaces []CellValue[int], heights []CellValue[float64]) {
	for k, v := range g.surfaces {
		surfaces = append(surfaces, CellValue[int]{X: k[0], Z: k[1], Value: v})
	}
	for k, v := range g.heights {
		heights = append(heights, CellValue[float64]{X: k[0], Z: k[1], Value: v})
	}
	sort.Slice(surfaces, func(i, j int) bool {
		return surfaces[i].X < surfaces[j].X || (surfaces[i].X == surfaces[j].X && surfaces[i].Z < surfaces[j].Z)
	})
	sort.Slice(heights, func(i, j int) bool {
		return heights[i].X < heights[j].X || (heights[i].X == heights[j].X && heights[i].Z < heights[j].Z)
	})
	return surfaces, heights
}
