package cocodet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygonsToMask(t *testing.T) {
	t.Run("rectangle", func(t *testing.T) {
		m := PolygonsToMask([][]float64{{2, 2, 8, 2, 8, 6, 2, 6}}, 10, 10)
		require.Equal(t, 10, m.Width)
		require.Equal(t, 10, m.Height)
		assert.Equal(t, 24, m.Area())
		assert.Equal(t, uint8(1), m.At(2, 2))
		assert.Equal(t, uint8(1), m.At(7, 5))
		assert.Equal(t, uint8(0), m.At(8, 5))
		assert.Equal(t, uint8(0), m.At(7, 6))
		assert.Equal(t, uint8(0), m.At(1, 2))
	})

	t.Run("union of parts", func(t *testing.T) {
		m := PolygonsToMask([][]float64{
			{0, 0, 2, 0, 2, 2, 0, 2},
			{5, 5, 8, 5, 8, 8, 5, 8},
			{1, 1, 2, 1}, // Too few points.
		}, 10, 10)
		assert.Equal(t, 4+9, m.Area())
		assert.Equal(t, uint8(1), m.At(0, 0))
		assert.Equal(t, uint8(1), m.At(6, 6))
		assert.Equal(t, uint8(0), m.At(3, 3))
	})

	t.Run("clipped to the image", func(t *testing.T) {
		m := PolygonsToMask([][]float64{{-5, -5, 3, -5, 3, 3, -5, 3}}, 4, 4)
		assert.Equal(t, 9, m.Area())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, 0, PolygonsToMask(nil, 4, 4).Area())
		assert.Len(t, PolygonsToMask(nil, 4, 4).Pix, 16)
		assert.Empty(t, PolygonsToMask([][]float64{{0, 0, 1, 0, 1, 1}}, 0, 4).Pix)
	})
}

func TestRLEString(t *testing.T) {
	tests := []struct {
		enc    string
		counts []uint32
	}{
		{"352", []uint32{3, 5, 2}},
		{"1232", []uint32{1, 2, 3, 4}},
		{"152M", []uint32{1, 5, 2, 2}}, // Negative difference.
		{"X1", []uint32{40}},           // Continuation.
		{"", []uint32{}},
	}

	for _, tt := range tests {
		t.Run(tt.enc, func(t *testing.T) {
			assert.Equal(t, tt.counts, DecodeRLEString(tt.enc))
			assert.Equal(t, tt.enc, EncodeRLEString(tt.counts))
		})
	}

	counts := []uint32{100, 3, 1000, 2, 7, 65536, 1}
	assert.Equal(t, counts, DecodeRLEString(EncodeRLEString(counts)))
}

func TestRLEDecode(t *testing.T) {
	m, err := RLE{Height: 2, Width: 3, Counts: []uint32{1, 2, 3}}.Decode()
	require.NoError(t, err)

	// Column-major: pixels 1 and 2 are (0, 1) and (1, 0).
	assert.Equal(t, []uint8{
		0, 1, 0,
		1, 0, 0,
	}, m.Pix)
	assert.Equal(t, RLE{Height: 2, Width: 3, Counts: []uint32{1, 2, 3}}, EncodeRLE(m))

	_, err = RLE{Height: 2, Width: 3, Counts: []uint32{4, 3}}.Decode()
	assert.Error(t, err)

	starting := NewMask(2, 2)
	starting.Set(0, 0, 1)
	assert.Equal(t, []uint32{0, 1, 3}, EncodeRLE(starting).Counts)
}

func TestSegmentationToMask(t *testing.T) {
	m, err := SegmentationToMask(Segmentation{Polygons: [][]float64{{0, 0, 2, 0, 2, 1, 0, 1}}}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 1, 0, 0, 0, 0}, m.Pix)

	m, err = SegmentationToMask(Segmentation{RLE: &RLE{Height: 2, Width: 3,
		Counts: []uint32{0, 6}}}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Area())

	_, err = SegmentationToMask(Segmentation{RLE: &RLE{Height: 3, Width: 2, Counts: []uint32{6}}},
		3, 2)
	assert.Error(t, err)
}

func TestConvertPolyMasks(t *testing.T) {
	masks, err := ConvertPolyMasks(nil, 4, 3)
	require.NoError(t, err)
	assert.NotNil(t, masks)
	assert.Empty(t, masks)

	masks, err = ConvertPolyMasks([]Segmentation{
		{Polygons: [][]float64{{0, 0, 4, 0, 4, 3, 0, 3}}},
		{RLE: &RLE{Height: 3, Width: 4, Counts: []uint32{12}}},
	}, 4, 3)
	require.NoError(t, err)
	require.Len(t, masks, 2)
	assert.Equal(t, 12, masks[0].Area())
	assert.Equal(t, 0, masks[1].Area())

	_, err = ConvertPolyMasks([]Segmentation{{RLE: &RLE{Height: 1, Width: 1}}}, 4, 3)
	assert.Error(t, err)
}
