package store

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIsFullyTransparentPNG(t *testing.T) {
	transparent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	assert.True(t, IsFullyTransparentPNG(encodePNG(t, transparent)))

	onePixel := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	onePixel.SetNRGBA(3, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	assert.False(t, IsFullyTransparentPNG(encodePNG(t, onePixel)))

	faint := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	faint.SetNRGBA(0, 0, color.NRGBA{A: 1})
	assert.False(t, IsFullyTransparentPNG(encodePNG(t, faint)))
}

func TestIsFullyTransparentPNGOpaqueColorTypes(t *testing.T) {
	// Grayscale has no alpha channel; the IHDR fast path answers without
	// decoding.
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	data := encodePNG(t, gray)

	colorType, ok := pngColorType(data)
	require.True(t, ok)
	assert.Equal(t, byte(0), colorType)
	assert.False(t, IsFullyTransparentPNG(data))
}

func TestIsFullyTransparentPNGNonPNG(t *testing.T) {
	assert.False(t, IsFullyTransparentPNG([]byte("GIF89a....")))
	assert.False(t, IsFullyTransparentPNG([]byte{0xff, 0xd8, 0xff}))
	assert.False(t, IsFullyTransparentPNG(nil))
}

func TestMD5Hex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hex(nil))
	assert.Equal(t, "098f6bcd4621d373cade4e832627b4f6", MD5Hex([]byte("test")))
}
