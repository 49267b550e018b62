package constants

import (
	"mime"
	"strings"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

// DefaultMaxUploadBytes caps a single document payload (20 MiB).
const DefaultMaxUploadBytes int64 = 20 << 20

// AllowedMIMETypes is the ingress allow-list.
var AllowedMIMETypes = map[string]struct{}{
	MIMEPDF:  {},
	MIMEJPEG: {},
	MIMEPNG:  {},
}

// AllowedExtensions maps accepted file extensions to their MIME type.
var AllowedExtensions = map[string]string{
	"pdf":  MIMEPDF,
	"jpg":  MIMEJPEG,
	"jpeg": MIMEJPEG,
	"png":  MIMEPNG,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMIME strips parameters and lowercases a declared content type.
// "image/jpg" and "image/pjpeg" are folded into image/jpeg.
func NormalizeMIME(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = strings.ToLower(strings.SplitN(declared, ";", 2)[0])
	}
	switch mt {
	case "image/jpg", "image/pjpeg":
		return MIMEJPEG
	case "application/x-pdf":
		return MIMEPDF
	}
	return mt
}

// IsAllowedMIME reports whether the normalized type is on the allow-list.
func IsAllowedMIME(mt string) bool {
	_, ok := AllowedMIMETypes[NormalizeMIME(mt)]
	return ok
}

// IsImage reports whether mt is an accepted raster image type.
func IsImage(mt string) bool {
	mt = NormalizeMIME(mt)
	return mt == MIMEJPEG || mt == MIMEPNG
}

// ExtForMIME returns the canonical extension (with dot) for an allowed type.
func ExtForMIME(mt string) string {
	switch NormalizeMIME(mt) {
	case MIMEPDF:
		return ".pdf"
	case MIMEJPEG:
		return ".jpg"
	case MIMEPNG:
		return ".png"
	}
	return ""
}
