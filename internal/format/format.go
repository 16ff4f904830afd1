// Package format sniffs tile payload formats from magic bytes.
package format

import "bytes"

// Format is a tile payload format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
	GIF  Format = "gif"
	PBF  Format = "pbf"
)

// Known reports whether s names a format a store may declare.
func Known(s string) bool {
	switch s {
	case "png", "jpeg", "jpg", "webp", "gif", "pbf":
		return true
	}
	return false
}

// Normalize maps metadata format aliases onto canonical values.
func Normalize(s string) string {
	if s == "jpg" {
		return "jpeg"
	}
	return s
}

// Info describes a sniffed payload.
type Info struct {
	Format          Format
	ContentType     string
	ContentEncoding string
}

var (
	magicPNG   = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	magicGIF87 = []byte("GIF87a")
	magicGIF89 = []byte("GIF89a")
	magicRIFF  = []byte("RIFF")
	magicWEBP  = []byte("WEBP")
)

// Sniff inspects the payload's magic bytes. Anything unrecognized is
// treated as a protobuf vector tile; gzip and deflate framing on those is
// reported as a content encoding.
func Sniff(data []byte) Info {
	switch {
	case bytes.HasPrefix(data, magicPNG):
		return Info{Format: PNG, ContentType: "image/png"}
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return Info{Format: JPEG, ContentType: "image/jpeg"}
	case bytes.HasPrefix(data, magicGIF87) || bytes.HasPrefix(data, magicGIF89):
		return Info{Format: GIF, ContentType: "image/gif"}
	case len(data) >= 12 && bytes.Equal(data[0:4], magicRIFF) && bytes.Equal(data[8:12], magicWEBP):
		return Info{Format: WebP, ContentType: "image/webp"}
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return Info{Format: PBF, ContentType: "application/x-protobuf", ContentEncoding: "gzip"}
	case len(data) >= 2 && data[0] == 0x78 && data[1] == 0x9c:
		return Info{Format: PBF, ContentType: "application/x-protobuf", ContentEncoding: "deflate"}
	default:
		return Info{Format: PBF, ContentType: "application/x-protobuf"}
	}
}

// ContentType returns the content type for a declared store format.
func ContentType(format string) string {
	switch Normalize(format) {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "application/x-protobuf"
	}
}

// Extension returns the file extension used by directory stores.
func Extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
