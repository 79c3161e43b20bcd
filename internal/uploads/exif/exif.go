// Package exif pulls capture time and GPS coordinates out of uploaded
// photos. Extraction is best effort; photos without usable EXIF data are
// published without a backdate or place tag unless the user supplies them.
package exif

import (
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Metadata holds the EXIF fields the publish pipeline cares about.
// Nil fields were absent from the photo.
type Metadata struct {
	Latitude  *float64
	Longitude *float64
	TakenAt   *time.Time
}

// Extract reads EXIF metadata from a JPEG stream. It never fails: corrupt
// or absent EXIF segments yield empty Metadata. goexif can panic on
// malformed maker notes, so the decode runs behind a recover.
func Extract(r io.Reader) (meta Metadata) {
	defer func() {
		if recover() != nil {
			meta = Metadata{}
		}
	}()

	x, err := exif.Decode(r)
	if err != nil {
		return Metadata{}
	}

	if lat, lon, err := x.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &lon
	}

	// DateTimeOriginal with a fallback to DateTime.
	if taken, err := x.DateTime(); err == nil {
		meta.TakenAt = &taken
	}

	return meta
}
