// Package texture loads and generates the dissolve input textures: the noise that drives the dissolve threshold and
// the spawn mask that selects where particles may be emitted. Both are square RGBA8 images whose red channel carries
// the value.
package texture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

// Sources names the files to load. An empty path selects the procedural texture.
type Sources struct {
	NoisePath string
	SpawnPath string
	// Size is the side length every texture is resampled to.
	Size int
	// Seed drives the procedural textures.
	Seed uint32
}

// Set is the pair of textures bound by the dissolve passes.
type Set struct {
	Noise *image.RGBA
	Spawn *image.RGBA
}

// Load decodes the image at path and resamples it to size x size with Catmull-Rom filtering. PNG, JPEG, GIF, BMP
// and TIFF are accepted.
//
// Parameters:
//   - path: the image file
//   - size: the side length of the result
//
// Returns:
//   - *image.RGBA: the resampled image
//   - error: error if the file cannot be opened or decoded
func Load(path string, size int) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("texture size must be positive, got %d", size)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open texture %s: %w", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode texture %s: %w", path, err)
	}
	return Resample(src, size), nil
}

// Resample scales src to size x size with Catmull-Rom filtering.
//
// Parameters:
//   - src: the source image
//   - size: the side length of the result
//
// Returns:
//   - *image.RGBA: the scaled image
func Resample(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// LoadSet loads or generates both dissolve textures concurrently.
//
// Parameters:
//   - ctx: cancels the loads that have not started yet
//   - src: paths, size and seed
//
// Returns:
//   - Set: the noise and spawn textures
//   - error: the first load error
func LoadSet(ctx context.Context, src Sources) (Set, error) {
	if src.Size <= 0 {
		return Set{}, fmt.Errorf("texture size must be positive, got %d", src.Size)
	}

	var set Set
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if src.NoisePath == "" {
			set.Noise = ValueNoise(src.Size, src.Seed, 5)
			return nil
		}
		img, err := Load(src.NoisePath, src.Size)
		set.Noise = img
		return err
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if src.SpawnPath == "" {
			set.Spawn = SpawnMask(src.Size, src.Seed+1)
			return nil
		}
		img, err := Load(src.SpawnPath, src.Size)
		set.Spawn = img
		return err
	})
	if err := g.Wait(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Pixels returns the tightly packed RGBA8 rows of img, the layout WriteTexture expects with a row pitch of 4*width.
func Pixels(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w && img.Rect.Min == (image.Point{}) {
		return img.Pix[:4*w*h]
	}
	out := make([]byte, 0, 4*w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		out = append(out, img.Pix[off:off+4*w]...)
	}
	return out
}

// Sample returns the red channel at texture coordinate (u, v) in [0, 1] with nearest filtering and clamp to edge,
// matching the sampler the dissolve passes use.
//
// Parameters:
//   - img: the texture
//   - u, v: texture coordinates, v = 0 at the top row
//
// Returns:
//   - float32: the red channel in [0, 1]
func Sample(img *image.RGBA, u, v float32) float32 {
	b := img.Rect
	x := b.Min.X + clampIndex(int(u*float32(b.Dx())), b.Dx())
	y := b.Min.Y + clampIndex(int(v*float32(b.Dy())), b.Dy())
	return float32(img.Pix[img.PixOffset(x, y)]) / 255
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}
