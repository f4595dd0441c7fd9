package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestNormalizeConvertsToJPEGDataURI(t *testing.T) {
	n := NewNormalizer(1 << 20)

	out, err := n.Normalize(context.Background(), pngDataURI(t))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestNormalizeRejectsNonImagePayload(t *testing.T) {
	n := NewNormalizer(1 << 20)

	garbage := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not an image"))
	_, err := n.Normalize(context.Background(), garbage)
	assert.ErrorContains(t, err, "failed to decode image")
}

func TestNormalizeRejectsOversizedImage(t *testing.T) {
	n := NewNormalizer(16)

	_, err := n.Normalize(context.Background(), pngDataURI(t))
	assert.ErrorContains(t, err, "exceeds maximum limit")
}

func TestNormalizeRejectsUnknownPayloadShape(t *testing.T) {
	n := NewNormalizer(1 << 20)

	_, err := n.Normalize(context.Background(), "ftp://example.com/pic.png")
	assert.ErrorContains(t, err, "invalid image data format")
}

func TestNormalizeRejectsMalformedBase64(t *testing.T) {
	n := NewNormalizer(1 << 20)

	_, err := n.Normalize(context.Background(), "data:image/png;base64,%%%%")
	assert.ErrorContains(t, err, "failed to decode base64")
}
