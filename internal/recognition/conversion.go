package recognition

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// renderPDF rasterizes the first page of a PDF to PNG. Receipts are almost
// always single page.
func renderPDF(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeToPNG re-encodes any supported image format as PNG
func decodeToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEIC(imageData) || isHEICMimeType(mimeType) {
		// Go's standard image package can't decode HEIC (iPhone default)
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, WebP, GIF, HEIC, PDF): %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC sniffs the HEIC/HEIF container by its ftyp box brand
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// PrepareImage normalizes arbitrary uploaded bytes (PDF, HEIC, JPEG, WebP,
// ...) into PNG for the validation and recognition stages. It returns the
// PNG data and whether a conversion happened.
func PrepareImage(data []byte, contentType string) ([]byte, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if mimeType == "application/pdf" {
		pngData, err := renderPDF(data)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF: %w", err)
		}
		return pngData, true, nil
	}

	if mimeType == "image/png" && !isHEIC(data) {
		// Verify the claim before passing the bytes through untouched.
		// Mislabeled or corrupt uploads fall through to the general
		// decoder, which sniffs the real format or rejects the bytes.
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
			return data, false, nil
		}
	}

	pngData, err := decodeToPNG(data, mimeType)
	if err != nil {
		return nil, false, err
	}
	return pngData, true, nil
}
