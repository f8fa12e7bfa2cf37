package storage

import (
	"bytes"
	"image"
	"net/http"

	_ "image/gif"  // DecodeConfig support
	_ "image/jpeg" // DecodeConfig support
	_ "image/png"  // DecodeConfig support

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"  // DecodeConfig support
	_ "golang.org/x/image/webp" // DecodeConfig support

	"github.com/appvault/harvester/models"
)

// ImageMeta is what Sniff can learn from raw image bytes.
type ImageMeta struct {
	ContentType string
	Width       int
	Height      int
	EXIF        *models.EXIFData
}

// Sniff inspects image bytes for content type, dimensions, and EXIF metadata.
// Everything is best-effort: unrecognized or truncated data yields partial
// results, never an error.
func Sniff(data []byte) ImageMeta {
	meta := ImageMeta{
		ContentType: DetectContentType(data),
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		meta.Width = cfg.Width
		meta.Height = cfg.Height
	}

	meta.EXIF = sniffEXIF(data)

	return meta
}

// DetectContentType sniffs the MIME type from the leading bytes.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// sniffEXIF extracts the EXIF fields kept on image assets. Only JPEG and TIFF
// carry EXIF; other formats return nil.
func sniffEXIF(data []byte) *models.EXIFData {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	result := &models.EXIFData{}
	found := false

	read := func(field exif.FieldName, dst *string) {
		tag, err := x.Get(field)
		if err != nil {
			return
		}
		if val, err := tag.StringVal(); err == nil && val != "" {
			*dst = val
			found = true
		}
	}

	read(exif.DateTime, &result.DateTime)
	read(exif.DateTimeOriginal, &result.DateTimeOriginal)
	read(exif.Make, &result.Make)
	read(exif.Model, &result.Model)
	read(exif.Artist, &result.Artist)
	read(exif.Software, &result.Software)

	if !found {
		return nil
	}
	return result
}
