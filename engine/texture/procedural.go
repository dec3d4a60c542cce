package texture

import (
	"image"
	"image/color"
	"math"
)

// ValueNoise generates tileable fractal value noise. Each octave doubles the lattice frequency and halves the
// amplitude; the sum is normalised to [0, 1] and written to all colour channels.
//
// Parameters:
//   - size: the side length
//   - seed: lattice seed
//   - octaves: number of octaves, at least 1
//
// Returns:
//   - *image.RGBA: the noise texture
func ValueNoise(size int, seed uint32, octaves int) *image.RGBA {
	octaves = max(octaves, 1)
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	var norm float64
	for o := range octaves {
		norm += math.Pow(0.5, float64(o))
	}

	for y := range size {
		for x := range size {
			var sum float64
			amp := 1.0
			freq := 4
			for o := range octaves {
				u := float64(x) / float64(size) * float64(freq)
				v := float64(y) / float64(size) * float64(freq)
				sum += amp * latticeNoise(u, v, freq, seed+uint32(o)*1013)
				amp *= 0.5
				freq *= 2
			}
			g := uint8(math.Round(sum / norm * 255))
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

// SpawnMask generates a mask that is white where particles may spawn. Low-frequency noise above 0.35 spawns, which
// leaves irregular holes that dissolve without emitting.
//
// Parameters:
//   - size: the side length
//   - seed: lattice seed
//
// Returns:
//   - *image.RGBA: the mask
func SpawnMask(size int, seed uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			u := float64(x) / float64(size) * 4
			v := float64(y) / float64(size) * 4
			var g uint8
			if latticeNoise(u, v, 4, seed) > 0.35 {
				g = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

// latticeNoise interpolates hashed lattice values with a smoothstep. The lattice wraps every period cells.
func latticeNoise(u, v float64, period int, seed uint32) float64 {
	x0, y0 := int(math.Floor(u)), int(math.Floor(v))
	fx, fy := smooth(u-float64(x0)), smooth(v-float64(y0))

	corner := func(x, y int) float64 {
		x = ((x % period) + period) % period
		y = ((y % period) + period) % period
		return float64(hash2(uint32(x), uint32(y), seed)) / math.MaxUint32
	}
	a := corner(x0, y0)
	b := corner(x0+1, y0)
	c := corner(x0, y0+1)
	d := corner(x0+1, y0+1)
	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return top + (bottom-top)*fy
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

// hash2 is a 2D integer hash (xxhash-style avalanche).
func hash2(x, y, seed uint32) uint32 {
	h := seed + x*374761393 + y*668265263
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}
