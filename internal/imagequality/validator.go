package imagequality

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"math"
	"strings"

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Config holds the thresholds used to classify an image as scannable
type Config struct {
	MinWidth     int
	MinHeight    int
	MinFileSize  int // bytes
	MaxFileSize  int // bytes
	MinSharpness float64
	MinContrast  float64
}

// DefaultConfig returns thresholds tuned for phone photos of receipts
func DefaultConfig() Config {
	return Config{
		MinWidth:     600,
		MinHeight:    400,
		MinFileSize:  10 * 1024,
		MaxFileSize:  10 * 1024 * 1024,
		MinSharpness: 100,
		MinContrast:  40,
	}
}

// Metadata describes the decoded image
type Metadata struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Size     int    `json:"size"`
	HasAlpha bool   `json:"has_alpha"`
}

// Quality holds the computed quality metrics. Fields are only set when the
// dimension and size checks passed, since the metrics are meaningless on an
// image that is too small to scan anyway.
type Quality struct {
	Sharpness  *float64 `json:"sharpness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// Result is the outcome of validating one image
type Result struct {
	IsValid  bool      `json:"is_valid"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
	Metadata *Metadata `json:"metadata"`
	Quality  Quality   `json:"quality"`
}

// Validator checks whether an image is good enough to feed to OCR
type Validator struct {
	config Config
}

// NewValidator creates a Validator with the given thresholds
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// Validate decodes the image and classifies it. A decode failure is reported
// as an error inside the Result, not returned; callers that want a hard
// failure use ValidateOrFail.
func (v *Validator) Validate(data []byte) Result {
	result := Result{
		Errors:   []string{},
		Warnings: []string{},
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("unable to decode image: %v", err))
		return result
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	result.Metadata = &Metadata{
		Width:    width,
		Height:   height,
		Format:   format,
		Size:     len(data),
		HasAlpha: hasAlphaChannel(img),
	}

	// Dimension checks
	if width < v.config.MinWidth || height < v.config.MinHeight {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"resolution too low: %dx%d (minimum %dx%d)",
			width, height, v.config.MinWidth, v.config.MinHeight))
	} else if width < v.config.MinWidth*3/2 || height < v.config.MinHeight*3/2 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"resolution is marginal: %dx%d, OCR accuracy may suffer", width, height))
	}

	// File size checks
	if len(data) < v.config.MinFileSize {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"file too small: %d bytes (minimum %d)", len(data), v.config.MinFileSize))
	} else if len(data) > v.config.MaxFileSize {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"file too large: %d bytes (maximum %d)", len(data), v.config.MaxFileSize))
	}

	if len(result.Errors) > 0 {
		return result
	}

	gray := toGray(img)

	sharpness := measureSharpness(gray)
	contrast := measureContrast(gray)
	brightness := measureBrightness(gray)
	result.Quality.Sharpness = &sharpness
	result.Quality.Contrast = &contrast
	result.Quality.Brightness = &brightness

	if sharpness < v.config.MinSharpness {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"image is too blurry: sharpness %.1f (minimum %.1f)", sharpness, v.config.MinSharpness))
	} else if sharpness < v.config.MinSharpness*1.5 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"image sharpness is marginal: %.1f", sharpness))
	}

	if contrast < v.config.MinContrast {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"low contrast: %.1f (minimum %.1f)", contrast, v.config.MinContrast))
	}

	if brightness < 50 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"image is too dark: brightness %.1f", brightness))
	} else if brightness > 200 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"image is overexposed: brightness %.1f", brightness))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// remediationChecklist is appended to every ValidateOrFail error so the
// caller can show the user how to retake the photo
var remediationChecklist = []string{
	"hold the camera steady and let it focus before shooting",
	"photograph the receipt on a flat, well-lit surface",
	"fill the frame with the receipt and avoid shadows",
	"use the highest resolution your camera supports",
}

// ValidateOrFail returns nil when the image passes validation, or a single
// descriptive error that combines all errors, warnings, and a remediation
// checklist
func (v *Validator) ValidateOrFail(data []byte) error {
	result := v.Validate(data)
	if result.IsValid {
		return nil
	}

	var b strings.Builder
	b.WriteString("image failed quality validation: ")
	b.WriteString(strings.Join(result.Errors, "; "))
	if len(result.Warnings) > 0 {
		b.WriteString(" (warnings: ")
		b.WriteString(strings.Join(result.Warnings, "; "))
		b.WriteString(")")
	}
	b.WriteString(". To fix: ")
	b.WriteString(strings.Join(remediationChecklist, "; "))
	return fmt.Errorf("%s", b.String())
}

// toGray converts any image to 8-bit grayscale
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// hasAlphaChannel reports whether the decoded image carries alpha information
func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return true
	}
	return false
}

// measureSharpness approximates focus quality as the variance of the
// Laplacian over a centered window. The window is capped at
// min(100, w/4, h/4) pixels per side so border artifacts from phone
// cameras don't dominate the measurement.
func measureSharpness(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	window := 100
	if w/4 < window {
		window = w / 4
	}
	if h/4 < window {
		window = h / 4
	}
	if window < 3 {
		return 0
	}

	cx := bounds.Min.X + w/2
	cy := bounds.Min.Y + h/2
	x0 := cx - window/2
	y0 := cy - window/2

	var sum, sumSq float64
	n := 0
	for y := y0 + 1; y < y0+window-1; y++ {
		for x := x0 + 1; x < x0+window-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			lap := 4*center -
				float64(gray.GrayAt(x-1, y).Y) -
				float64(gray.GrayAt(x+1, y).Y) -
				float64(gray.GrayAt(x, y-1).Y) -
				float64(gray.GrayAt(x, y+1).Y)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// measureContrast is the standard deviation of gray intensity over the
// whole image
func measureContrast(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	var sum, sumSq float64
	n := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// measureBrightness is the mean gray intensity, 0-255
func measureBrightness(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	var sum float64
	n := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += float64(gray.GrayAt(x, y).Y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
