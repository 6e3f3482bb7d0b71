package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// Level names a bundle of cleanup stages trading quality against cost
type Level string

const (
	LevelQuick    Level = "quick"
	LevelStandard Level = "standard"
	LevelFull     Level = "full"
)

// highResThreshold is the dimension above which the image is downscaled
// to bound OCR engine processing time
const highResThreshold = 2000

// downscaleRatio is applied when a dimension exceeds highResThreshold
const downscaleRatio = 0.5

// Options selects individual stages. Use OptionsForLevel for the named
// bundles; grayscale always runs.
type Options struct {
	Downscale     bool
	Denoise       bool
	LocalContrast bool
	Sharpen       bool
}

// OptionsForLevel maps a named level to its stage toggles. Unknown levels
// fall back to standard.
func OptionsForLevel(level Level) Options {
	switch level {
	case LevelQuick:
		return Options{Downscale: true}
	case LevelFull:
		return Options{Downscale: true, Denoise: true, LocalContrast: true, Sharpen: true}
	default:
		return Options{Downscale: true, Denoise: true, LocalContrast: true}
	}
}

// Size holds pixel dimensions
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result carries the cleaned image plus a trace of what was done to it
type Result struct {
	Data          []byte   `json:"-"`
	Applied       []string `json:"applied"`
	OriginalSize  Size     `json:"original_size"`
	ProcessedSize Size     `json:"processed_size"`
	Format        string   `json:"format"`
}

// Process runs the cleanup pipeline over the image. Stages run in a fixed
// order and each application is recorded in Applied. The output is always
// PNG. A malformed input returns a decode error.
func Process(data []byte, opts Options) (*Result, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	result := &Result{
		Applied:      []string{},
		OriginalSize: Size{Width: bounds.Dx(), Height: bounds.Dy()},
		Format:       format,
	}

	img := imaging.Grayscale(src)
	result.Applied = append(result.Applied, "grayscale")

	if opts.Downscale {
		w := img.Bounds().Dx()
		h := img.Bounds().Dy()
		if w > highResThreshold || h > highResThreshold {
			img = imaging.Resize(img, int(float64(w)*downscaleRatio), 0, imaging.Lanczos)
			result.Applied = append(result.Applied, "downscale")
		}
	}

	if opts.Denoise {
		// Mild gaussian blur knocks out sensor noise without eating glyph edges
		img = imaging.Blur(img, 0.6)
		result.Applied = append(result.Applied, "denoise")
	}

	if opts.LocalContrast {
		img = equalizeContrast(img)
		result.Applied = append(result.Applied, "local_contrast")
	}

	if opts.Sharpen {
		img = stretchLevels(img)
		img = imaging.Sharpen(img, 1.0)
		result.Applied = append(result.Applied, "sharpen")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding processed image: %w", err)
	}

	processed := img.Bounds()
	result.Data = buf.Bytes()
	result.ProcessedSize = Size{Width: processed.Dx(), Height: processed.Dy()}
	return result, nil
}

// ProcessLevel runs Process with the stage bundle for the given level
func ProcessLevel(data []byte, level Level) (*Result, error) {
	return Process(data, OptionsForLevel(level))
}

// Tile geometry for local contrast equalization. Each tile equalizes its
// own clipped histogram; the clip bounds how far a near-uniform tile can
// amplify noise.
const (
	contrastTileSize     = 64
	contrastClipMultiple = 4
)

// equalizeContrast applies clipped adaptive histogram equalization over
// the luminance channel, tile by tile, so faded thermal-paper text stands
// out from its local background. An evenly lit receipt gets a gentle
// global stretch; a receipt photographed half in shadow gets the shadowed
// region equalized on its own terms. Pixel values blend the four nearest
// tile mappings so tile seams stay invisible.
func equalizeContrast(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return img
	}

	tilesX := (w + contrastTileSize - 1) / contrastTileSize
	tilesY := (h + contrastTileSize - 1) / contrastTileSize

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0 := bounds.Min.X + tx*contrastTileSize
			y0 := bounds.Min.Y + ty*contrastTileSize
			x1 := x0 + contrastTileSize
			y1 := y0 + contrastTileSize
			if x1 > bounds.Max.X {
				x1 = bounds.Max.X
			}
			if y1 > bounds.Max.Y {
				y1 = bounds.Max.Y
			}
			luts[ty*tilesX+tx] = tileLUT(img, x0, y0, x1, y1)
		}
	}

	out := imaging.Clone(img)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := blendTiles(luts, tilesX, tilesY, x-bounds.Min.X, y-bounds.Min.Y, img.NRGBAAt(x, y).R)
			p := out.NRGBAAt(x, y)
			p.R, p.G, p.B = v, v, v
			out.SetNRGBA(x, y, p)
		}
	}
	return out
}

// tileLUT builds the equalization mapping for one tile. The histogram is
// clipped before the cumulative sum and the clipped mass redistributed
// uniformly, which caps the slope of the mapping.
func tileLUT(img *image.NRGBA, x0, y0, x1, y1 int) [256]uint8 {
	var lut [256]uint8
	total := (x1 - x0) * (y1 - y0)
	if total == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	var hist [256]int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			// Grayscale ran first, so the red channel is the luminance
			hist[img.NRGBAAt(x, y).R]++
		}
	}

	limit := contrastClipMultiple * total / 256
	if limit < 1 {
		limit = 1
	}
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}
	share := clipped / 256
	for i := range hist {
		hist[i] += share
	}

	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = uint8(cum * 255 / total)
	}
	return lut
}

// blendTiles maps one pixel value through the four nearest tile mappings,
// weighted by the pixel's distance to each tile center
func blendTiles(luts [][256]uint8, tilesX, tilesY, x, y int, v uint8) uint8 {
	fx := (float64(x)+0.5)/contrastTileSize - 0.5
	fy := (float64(y)+0.5)/contrastTileSize - 0.5

	tx0 := int(math.Floor(fx))
	ty0 := int(math.Floor(fy))
	wx := fx - float64(tx0)
	wy := fy - float64(ty0)

	tx1 := clampTile(tx0+1, tilesX)
	ty1 := clampTile(ty0+1, tilesY)
	tx0 = clampTile(tx0, tilesX)
	ty0 = clampTile(ty0, tilesY)

	top := (1-wx)*float64(luts[ty0*tilesX+tx0][v]) + wx*float64(luts[ty0*tilesX+tx1][v])
	bottom := (1-wx)*float64(luts[ty1*tilesX+tx0][v]) + wx*float64(luts[ty1*tilesX+tx1][v])
	return uint8((1-wy)*top + wy*bottom + 0.5)
}

func clampTile(t, n int) int {
	if t < 0 {
		return 0
	}
	if t >= n {
		return n - 1
	}
	return t
}

// stretchLevels remaps the darkest pixel to 0 and the brightest to 255
func stretchLevels(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := img.NRGBAAt(x, y).R
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return img
	}
	span := int(hi) - int(lo)
	out := imaging.Clone(img)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := out.NRGBAAt(x, y)
			v := uint8((int(p.R) - int(lo)) * 255 / span)
			p.R, p.G, p.B = v, v, v
			out.SetNRGBA(x, y, p)
		}
	}
	return out
}
