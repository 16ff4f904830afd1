package store

import (
	"bytes"
	"encoding/binary"
	"image/png"
)

// IsFullyTransparentPNG reports whether data is a PNG whose every alpha
// sample is zero. Non-PNG payloads always return false.
//
// Decoding a full raster just to look at alpha is expensive, so the IHDR
// color type is checked first: only color types 4 and 6 carry an alpha
// channel, and type 3 (indexed) only through a tRNS chunk. Everything else
// is opaque by construction.
func IsFullyTransparentPNG(data []byte) bool {
	colorType, ok := pngColorType(data)
	if !ok {
		return false
	}
	switch colorType {
	case 4, 6:
		// Grayscale+alpha or truecolor+alpha: must decode.
	case 3:
		if !hasChunk(data, "tRNS") {
			return false
		}
	default:
		return false
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return false
			}
		}
	}
	return bounds.Dx() > 0 && bounds.Dy() > 0
}

// pngColorType reads the IHDR color type byte without decoding the image.
func pngColorType(data []byte) (byte, bool) {
	// 8 signature bytes, 4 length, 4 "IHDR", then 13 IHDR payload bytes
	// of which the color type is the tenth.
	const ihdrColorTypeOffset = 8 + 4 + 4 + 9
	if len(data) <= ihdrColorTypeOffset {
		return 0, false
	}
	if !bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}) {
		return 0, false
	}
	if string(data[12:16]) != "IHDR" {
		return 0, false
	}
	return data[ihdrColorTypeOffset], true
}

// hasChunk scans the PNG chunk list for the named chunk.
func hasChunk(data []byte, name string) bool {
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunk := string(data[pos+4 : pos+8])
		if chunk == name {
			return true
		}
		if chunk == "IEND" {
			return false
		}
		pos += 8 + length + 4
	}
	return false
}
