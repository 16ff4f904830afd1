package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantFormat   Format
		wantType     string
		wantEncoding string
	}{
		{
			name:       "png",
			data:       []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00},
			wantFormat: PNG,
			wantType:   "image/png",
		},
		{
			name:       "jpeg",
			data:       []byte{0xff, 0xd8, 0xff, 0xe0, 0x00},
			wantFormat: JPEG,
			wantType:   "image/jpeg",
		},
		{
			name:       "gif87a",
			data:       []byte("GIF87a...."),
			wantFormat: GIF,
			wantType:   "image/gif",
		},
		{
			name:       "gif89a",
			data:       []byte("GIF89a...."),
			wantFormat: GIF,
			wantType:   "image/gif",
		},
		{
			name:       "webp",
			data:       []byte("RIFF\x00\x00\x00\x00WEBPVP8 "),
			wantFormat: WebP,
			wantType:   "image/webp",
		},
		{
			name:         "gzipped pbf",
			data:         []byte{0x1f, 0x8b, 0x08, 0x00},
			wantFormat:   PBF,
			wantType:     "application/x-protobuf",
			wantEncoding: "gzip",
		},
		{
			name:         "deflate pbf",
			data:         []byte{0x78, 0x9c, 0x01},
			wantFormat:   PBF,
			wantType:     "application/x-protobuf",
			wantEncoding: "deflate",
		},
		{
			name:       "raw pbf fallback",
			data:       []byte{0x1a, 0x2c, 0x78},
			wantFormat: PBF,
			wantType:   "application/x-protobuf",
		},
		{
			name:       "empty",
			data:       nil,
			wantFormat: PBF,
			wantType:   "application/x-protobuf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Sniff(tt.data)
			assert.Equal(t, tt.wantFormat, info.Format)
			assert.Equal(t, tt.wantType, info.ContentType)
			assert.Equal(t, tt.wantEncoding, info.ContentEncoding)
		})
	}
}

func TestKnownAndNormalize(t *testing.T) {
	for _, f := range []string{"png", "jpeg", "jpg", "webp", "gif", "pbf"} {
		assert.True(t, Known(f), f)
	}
	assert.False(t, Known("tiff"))
	assert.Equal(t, "jpeg", Normalize("jpg"))
	assert.Equal(t, "png", Normalize("png"))
	assert.Equal(t, "jpg", Extension("jpeg"))
	assert.Equal(t, "pbf", Extension("pbf"))
}
