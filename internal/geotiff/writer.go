package geotiff

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// tagValue is one IFD entry staged for serialization. Entries must be
// appended in ascending tag order.
type tagValue struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// Write stores r as an uncompressed little-endian float32 GeoTIFF.
func Write(path string, r *raster.Raster, nodata float64) error {
	buf, err := Encode(r, nodata)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrapf(err, "geotiff: write %s", path)
	}
	return nil
}

// Encode serializes r as a single-band float32 GeoTIFF in one strip.
// NaN cells are written as the nodata value so the file round-trips.
func Encode(r *raster.Raster, nodata float64) ([]byte, error) {
	if r.Transform[2] != 0 || r.Transform[4] != 0 {
		return nil, eris.New("geotiff: rotated rasters not supported")
	}
	if int64(r.Size())*4 > math.MaxUint32/2 {
		return nil, eris.New("geotiff: raster too large for classic TIFF")
	}

	bo := binary.LittleEndian
	dataBytes := uint32(r.Size()) * 4

	enc16 := func(vs ...uint16) []byte {
		out := make([]byte, 2*len(vs))
		for i, v := range vs {
			bo.PutUint16(out[i*2:], v)
		}
		return out
	}
	enc32 := func(vs ...uint32) []byte {
		out := make([]byte, 4*len(vs))
		for i, v := range vs {
			bo.PutUint32(out[i*4:], v)
		}
		return out
	}
	encDouble := func(vs ...float64) []byte {
		out := make([]byte, 8*len(vs))
		for i, v := range vs {
			bo.PutUint64(out[i*8:], math.Float64bits(v))
		}
		return out
	}

	entries := []tagValue{
		{tagImageWidth, typeLong, 1, enc32(uint32(r.Cols))},
		{tagImageLength, typeLong, 1, enc32(uint32(r.Rows))},
		{tagBitsPerSample, typeShort, 1, enc16(32)},
		{tagCompression, typeShort, 1, enc16(compressionNone)},
		{tagPhotometric, typeShort, 1, enc16(1)},
		{tagStripOffsets, typeLong, 1, enc32(0)}, // patched below
		{tagSamplesPerPixel, typeShort, 1, enc16(1)},
		{tagRowsPerStrip, typeLong, 1, enc32(uint32(r.Rows))},
		{tagStripByteCounts, typeLong, 1, enc32(dataBytes)},
		{tagPlanarConfig, typeShort, 1, enc16(1)},
		{tagSampleFormat, typeShort, 1, enc16(formatFloat)},
		{tagModelPixelScale, typeDouble, 3, encDouble(r.Transform[1], -r.Transform[5], 0)},
		{tagModelTiepoint, typeDouble, 6, encDouble(0, 0, 0, r.Transform[0], r.Transform[3], 0)},
	}

	if code, ok := epsgCode(r.CRS); ok {
		modelType, crsKey := uint16(1), uint16(3072)
		if code >= 4000 && code < 5000 {
			modelType, crsKey = 2, 2048
		}
		keys := enc16(
			1, 1, 0, 3,
			1024, 0, 1, modelType,
			1025, 0, 1, 1,
			crsKey, 0, 1, code,
		)
		entries = append(entries, tagValue{tagGeoKeyDirectory, typeShort, 16, keys})
	}

	ndStr := "nan"
	if !math.IsNaN(nodata) {
		ndStr = strconv.FormatFloat(nodata, 'g', -1, 64)
	}
	ndBytes := append([]byte(ndStr), 0)
	entries = append(entries, tagValue{tagGDALNoData, typeASCII, uint32(len(ndBytes)), ndBytes})

	// Layout: header, IFD, out-of-line values, pixel data.
	ifdSize := 2 + len(entries)*12 + 4
	extraBase := uint32(8 + ifdSize)

	extra := &bytes.Buffer{}
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.value) > 4 {
			if extra.Len()%2 == 1 {
				extra.WriteByte(0)
			}
			offsets[i] = extraBase + uint32(extra.Len())
			extra.Write(e.value)
		}
	}
	if extra.Len()%2 == 1 {
		extra.WriteByte(0)
	}
	dataOffset := extraBase + uint32(extra.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].value = enc32(dataOffset)
		}
	}

	out := bytes.NewBuffer(make([]byte, 0, int(dataOffset+dataBytes)))
	out.WriteString("II")
	out.Write(enc16(42))
	out.Write(enc32(8))

	out.Write(enc16(uint16(len(entries))))
	for i, e := range entries {
		out.Write(enc16(e.tag, e.typ))
		out.Write(enc32(e.count))
		if len(e.value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.value)
			out.Write(inline[:])
		} else {
			out.Write(enc32(offsets[i]))
		}
	}
	out.Write(enc32(0))
	out.Write(extra.Bytes())

	px := make([]byte, 4)
	for _, v := range r.Data {
		if math.IsNaN(v) {
			v = nodata
		}
		bo.PutUint32(px, math.Float32bits(float32(v)))
		out.Write(px)
	}
	return out.Bytes(), nil
}

// epsgCode parses a "EPSG:nnnn" CRS string.
func epsgCode(crs string) (uint16, bool) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n >= 32767 {
		return 0, false
	}
	return uint16(n), true
}
