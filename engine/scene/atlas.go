package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AtlasTileSize is the edge length in texels of one atlas tile.
const AtlasTileSize = 128

// Texture pattern names accepted by materials.
const (
	PatternChecker = "checker"
	PatternBricks  = "bricks"
	PatternNoise   = "noise"
	PatternGrate   = "grate"
	PatternStripes = "stripes"
)

// pattern returns the RGBA color of a texel at normalized tile coordinates.
type pattern func(u, v float32, x, y int) [4]uint8

var patterns = map[string]pattern{
	PatternChecker: checker,
	PatternBricks:  bricks,
	PatternNoise:   noise,
	PatternGrate:   grate,
	PatternStripes: stripes,
}

// Atlas is the CPU image of the scene's texture atlas, tightly packed RGBA8 rows.
type Atlas struct {
	Width  uint32
	Height uint32
	Pixels []byte
	// Tiles maps a pattern name to its rect, offset in xy and scale in zw.
	Tiles map[string]mgl32.Vec4
}

// BuildAtlas renders every pattern used by materials into a square grid of tiles and assigns
// each material its AtlasRect. Untextured materials get a zero rect.
//
// Parameters:
//   - materials: the scene materials, updated in place
//
// Returns:
//   - *Atlas: the atlas image, at least one tile large
//   - error: an error if a material names an unknown pattern
func BuildAtlas(materials []Material) (*Atlas, error) {
	var names []string
	seen := map[string]bool{}
	for _, m := range materials {
		if m.Texture == "" || seen[m.Texture] {
			continue
		}
		if _, ok := patterns[m.Texture]; !ok {
			return nil, fmt.Errorf("scene: material %q uses unknown texture pattern %q", m.Name, m.Texture)
		}
		seen[m.Texture] = true
		names = append(names, m.Texture)
	}

	grid := 1
	for grid*grid < len(names) {
		grid++
	}
	size := uint32(grid * AtlasTileSize)
	a := &Atlas{
		Width:  size,
		Height: size,
		Pixels: make([]byte, size*size*4),
		Tiles:  make(map[string]mgl32.Vec4, len(names)),
	}
	scale := 1 / float32(grid)
	for i, name := range names {
		tx, ty := i%grid, i/grid
		a.paint(tx*AtlasTileSize, ty*AtlasTileSize, patterns[name])
		a.Tiles[name] = mgl32.Vec4{float32(tx) * scale, float32(ty) * scale, scale, scale}
	}
	for i := range materials {
		materials[i].AtlasRect = a.Tiles[materials[i].Texture]
	}
	return a, nil
}

func (a *Atlas) paint(ox, oy int, p pattern) {
	for y := 0; y < AtlasTileSize; y++ {
		for x := 0; x < AtlasTileSize; x++ {
			u := (float32(x) + 0.5) / AtlasTileSize
			v := (float32(y) + 0.5) / AtlasTileSize
			c := p(u, v, x, y)
			off := ((oy+y)*int(a.Width) + ox + x) * 4
			copy(a.Pixels[off:off+4], c[:])
		}
	}
}

func gray(l float32) [4]uint8 {
	b := uint8(math32.Min(math32.Max(l, 0), 1) * 255)
	return [4]uint8{b, b, b, 255}
}

func checker(u, v float32, _, _ int) [4]uint8 {
	if (int(u*8)+int(v*8))%2 == 0 {
		return gray(0.9)
	}
	return gray(0.15)
}

func bricks(u, v float32, _, _ int) [4]uint8 {
	row := int(v * 8)
	bu := u * 4
	if row%2 == 1 {
		bu += 0.5
	}
	fu := bu - math32.Floor(bu)
	fv := v*8 - float32(row)
	if fu < 0.05 || fv < 0.1 {
		return [4]uint8{200, 200, 190, 255}
	}
	shade := 0.8 + 0.2*hashUnit(uint32(row)*31+uint32(bu))
	return [4]uint8{uint8(170 * shade), uint8(70 * shade), uint8(50 * shade), 255}
}

func noise(_, _ float32, x, y int) [4]uint8 {
	return gray(0.3 + 0.6*hashUnit(uint32(y*AtlasTileSize+x)))
}

// grate is a metal lattice whose holes have zero alpha, exercising alpha tested materials.
func grate(u, v float32, _, _ int) [4]uint8 {
	fu := u*6 - math32.Floor(u*6)
	fv := v*6 - math32.Floor(v*6)
	if fu > 0.25 && fv > 0.25 {
		return [4]uint8{0, 0, 0, 0}
	}
	return [4]uint8{140, 145, 150, 255}
}

func stripes(u, _ float32, _, _ int) [4]uint8 {
	if int(u*16)%2 == 0 {
		return [4]uint8{230, 190, 40, 255}
	}
	return [4]uint8{30, 30, 30, 255}
}

// hashUnit maps an integer to [0, 1) with a PCG style hash.
func hashUnit(v uint32) float32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return float32((word>>22)^word) / 4294967296.0
}
