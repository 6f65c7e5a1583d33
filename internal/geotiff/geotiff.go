// Package geotiff reads and writes single-band GeoTIFF rasters without
// cgo. The reader handles classic TIFF in either byte order, stripped or
// tiled layout, uncompressed or deflate segments, and integer or floating
// point samples. The writer emits uncompressed little-endian float32, which
// is what every downstream consumer of the pipeline expects.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

const (
	compressionNone         = 1
	compressionDeflateAdobe = 8
	compressionDeflateOld   = 32946
)

const (
	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeSByte  = 6
	typeSShort = 8
	typeSLong  = 9
	typeFloat  = 11
	typeDouble = 12
)

var typeSizes = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4,
	5: 8, typeSByte: 1, 7: 1, typeSShort: 2, typeSLong: 4, 10: 8,
	typeFloat: 4, typeDouble: 8,
}

// field is one parsed IFD entry with its value bytes resolved.
type field struct {
	typ   uint16
	count uint32
	data  []byte
}

func (f field) uints(bo binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, f.count)
	switch f.typ {
	case typeByte, typeSByte:
		for _, b := range f.data {
			out = append(out, uint64(b))
		}
	case typeShort, typeSShort:
		for i := 0; i+2 <= len(f.data); i += 2 {
			out = append(out, uint64(bo.Uint16(f.data[i:])))
		}
	case typeLong, typeSLong:
		for i := 0; i+4 <= len(f.data); i += 4 {
			out = append(out, uint64(bo.Uint32(f.data[i:])))
		}
	}
	return out
}

func (f field) doubles(bo binary.ByteOrder) []float64 {
	switch f.typ {
	case typeDouble:
		out := make([]float64, 0, f.count)
		for i := 0; i+8 <= len(f.data); i += 8 {
			out = append(out, math.Float64frombits(bo.Uint64(f.data[i:])))
		}
		return out
	case typeFloat:
		out := make([]float64, 0, f.count)
		for i := 0; i+4 <= len(f.data); i += 4 {
			out = append(out, float64(math.Float32frombits(bo.Uint32(f.data[i:]))))
		}
		return out
	default:
		us := f.uints(bo)
		out := make([]float64, len(us))
		for i, u := range us {
			out[i] = float64(u)
		}
		return out
	}
}

func (f field) ascii() string {
	return strings.TrimRight(string(f.data), "\x00")
}

type decoder struct {
	buf    []byte
	bo     binary.ByteOrder
	fields map[uint16]field
}

// Read loads a GeoTIFF from disk.
func Read(path string) (*raster.Raster, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: read %s", path)
	}
	r, err := Decode(buf)
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: %s", path)
	}
	return r, nil
}

// Decode parses a single-band GeoTIFF from an in-memory buffer.
func Decode(buf []byte) (*raster.Raster, error) {
	if len(buf) < 8 {
		return nil, eris.New("geotiff: file too short")
	}
	var bo binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		bo = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, eris.New("geotiff: bad byte-order mark")
	}
	if bo.Uint16(buf[2:4]) != 42 {
		return nil, eris.New("geotiff: not a classic TIFF")
	}

	d := &decoder{buf: buf, bo: bo}
	if err := d.parseIFD(bo.Uint32(buf[4:8])); err != nil {
		return nil, err
	}

	width := int(d.uintTag(tagImageWidth, 0))
	height := int(d.uintTag(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, eris.New("geotiff: missing image dimensions")
	}
	if spp := d.uintTag(tagSamplesPerPixel, 1); spp != 1 {
		return nil, eris.Errorf("geotiff: %d samples per pixel, want single band", spp)
	}
	if pc := d.uintTag(tagPlanarConfig, 1); pc != 1 {
		return nil, eris.Errorf("geotiff: unsupported planar configuration %d", pc)
	}
	if pred := d.uintTag(tagPredictor, 1); pred != 1 {
		return nil, eris.Errorf("geotiff: unsupported predictor %d", pred)
	}

	bits := d.uintTag(tagBitsPerSample, 0)
	format := d.uintTag(tagSampleFormat, formatUint)
	at, bytesPer, err := sampleReader(format, bits, bo)
	if err != nil {
		return nil, err
	}

	compression := d.uintTag(tagCompression, compressionNone)
	data := make([]float64, width*height)

	if _, tiled := d.fields[tagTileWidth]; tiled {
		err = d.decodeTiles(data, width, height, bytesPer, compression, at)
	} else {
		err = d.decodeStrips(data, width, height, bytesPer, compression, at)
	}
	if err != nil {
		return nil, err
	}

	gt, err := d.geotransform()
	if err != nil {
		return nil, err
	}

	var crs string
	if f, ok := d.fields[tagGeoKeyDirectory]; ok {
		crs = crsFromGeoKeys(f, bo)
	}

	if f, ok := d.fields[tagGDALNoData]; ok {
		if nodata, perr := strconv.ParseFloat(strings.TrimSpace(f.ascii()), 64); perr == nil && !math.IsNaN(nodata) {
			for i, v := range data {
				if v == nodata {
					data[i] = math.NaN()
				}
			}
		}
	}

	return raster.New(height, width, data, gt, crs)
}

func (d *decoder) parseIFD(off uint32) error {
	if int(off)+2 > len(d.buf) {
		return eris.New("geotiff: IFD offset out of range")
	}
	n := int(d.bo.Uint16(d.buf[off : off+2]))
	base := int(off) + 2
	if base+n*12+4 > len(d.buf) {
		return eris.New("geotiff: truncated IFD")
	}
	d.fields = make(map[uint16]field, n)
	for i := 0; i < n; i++ {
		e := d.buf[base+i*12 : base+i*12+12]
		tag := d.bo.Uint16(e[0:2])
		typ := d.bo.Uint16(e[2:4])
		count := d.bo.Uint32(e[4:8])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		var data []byte
		if total <= 4 {
			data = e[8 : 8+total]
		} else {
			voff := int(d.bo.Uint32(e[8:12]))
			if voff < 0 || voff+total > len(d.buf) {
				return eris.Errorf("geotiff: tag %d value out of range", tag)
			}
			data = d.buf[voff : voff+total]
		}
		d.fields[tag] = field{typ: typ, count: count, data: data}
	}
	return nil
}

func (d *decoder) uintTag(tag uint16, def uint64) uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return def
	}
	us := f.uints(d.bo)
	if len(us) == 0 {
		return def
	}
	return us[0]
}

// sampleReader returns a function that decodes the i-th sample of a raw
// segment into a float64, plus the sample width in bytes.
func sampleReader(format, bits uint64, bo binary.ByteOrder) (func([]byte, int) float64, int, error) {
	switch {
	case format == formatFloat && bits == 32:
		return func(b []byte, i int) float64 {
			return float64(math.Float32frombits(bo.Uint32(b[i*4:])))
		}, 4, nil
	case format == formatFloat && bits == 64:
		return func(b []byte, i int) float64 {
			return math.Float64frombits(bo.Uint64(b[i*8:]))
		}, 8, nil
	case format == formatUint && bits == 8:
		return func(b []byte, i int) float64 { return float64(b[i]) }, 1, nil
	case format == formatUint && bits == 16:
		return func(b []byte, i int) float64 { return float64(bo.Uint16(b[i*2:])) }, 2, nil
	case format == formatUint && bits == 32:
		return func(b []byte, i int) float64 { return float64(bo.Uint32(b[i*4:])) }, 4, nil
	case format == formatInt && bits == 8:
		return func(b []byte, i int) float64 { return float64(int8(b[i])) }, 1, nil
	case format == formatInt && bits == 16:
		return func(b []byte, i int) float64 { return float64(int16(bo.Uint16(b[i*2:]))) }, 2, nil
	case format == formatInt && bits == 32:
		return func(b []byte, i int) float64 { return float64(int32(bo.Uint32(b[i*4:]))) }, 4, nil
	default:
		return nil, 0, eris.Errorf("geotiff: unsupported sample format %d at %d bits", format, bits)
	}
}

func (d *decoder) decodeStrips(data []float64, width, height, bytesPer int, compression uint64, at func([]byte, int) float64) error {
	offsets := d.fields[tagStripOffsets].uints(d.bo)
	counts := d.fields[tagStripByteCounts].uints(d.bo)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return eris.New("geotiff: inconsistent strip tags")
	}
	rowsPerStrip := int(d.uintTag(tagRowsPerStrip, uint64(height)))
	if rowsPerStrip <= 0 {
		rowsPerStrip = height
	}

	for i := range offsets {
		seg, err := d.segment(offsets[i], counts[i], compression)
		if err != nil {
			return err
		}
		startRow := i * rowsPerStrip
		if startRow >= height {
			break
		}
		nrows := rowsPerStrip
		if startRow+nrows > height {
			nrows = height - startRow
		}
		samples := nrows * width
		if len(seg) < samples*bytesPer {
			return eris.Errorf("geotiff: strip %d short: %d bytes, want %d", i, len(seg), samples*bytesPer)
		}
		base := startRow * width
		for j := 0; j < samples; j++ {
			data[base+j] = at(seg, j)
		}
	}
	return nil
}

func (d *decoder) decodeTiles(data []float64, width, height, bytesPer int, compression uint64, at func([]byte, int) float64) error {
	tw := int(d.uintTag(tagTileWidth, 0))
	th := int(d.uintTag(tagTileLength, 0))
	if tw <= 0 || th <= 0 {
		return eris.New("geotiff: missing tile dimensions")
	}
	offsets := d.fields[tagTileOffsets].uints(d.bo)
	counts := d.fields[tagTileByteCounts].uints(d.bo)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return eris.New("geotiff: inconsistent tile tags")
	}
	tilesAcross := (width + tw - 1) / tw

	for i := range offsets {
		seg, err := d.segment(offsets[i], counts[i], compression)
		if err != nil {
			return err
		}
		if len(seg) < tw*th*bytesPer {
			return eris.Errorf("geotiff: tile %d short: %d bytes, want %d", i, len(seg), tw*th*bytesPer)
		}
		baseRow := (i / tilesAcross) * th
		baseCol := (i % tilesAcross) * tw
		for tr := 0; tr < th; tr++ {
			row := baseRow + tr
			if row >= height {
				break
			}
			for tc := 0; tc < tw; tc++ {
				col := baseCol + tc
				if col >= width {
					break
				}
				data[row*width+col] = at(seg, tr*tw+tc)
			}
		}
	}
	return nil
}

func (d *decoder) segment(off, n, compression uint64) ([]byte, error) {
	if off+n > uint64(len(d.buf)) {
		return nil, eris.New("geotiff: segment out of range")
	}
	raw := d.buf[off : off+n]
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionDeflateAdobe, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrap(err, "geotiff: open deflate segment")
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, eris.Wrap(err, "geotiff: decompress segment")
		}
		return out, nil
	default:
		return nil, eris.Errorf("geotiff: unsupported compression %d", compression)
	}
}

// geotransform derives the pixel-to-world mapping from either the affine
// ModelTransformation matrix or the PixelScale+Tiepoint pair.
func (d *decoder) geotransform() (raster.Geotransform, error) {
	if f, ok := d.fields[tagModelTransformation]; ok {
		m := f.doubles(d.bo)
		if len(m) < 8 {
			return raster.Geotransform{}, eris.New("geotiff: short model transformation")
		}
		return raster.Geotransform{m[3], m[0], m[1], m[7], m[4], m[5]}, nil
	}

	sf, haveScale := d.fields[tagModelPixelScale]
	tf, haveTie := d.fields[tagModelTiepoint]
	if !haveScale || !haveTie {
		return raster.Geotransform{}, eris.New("geotiff: no georeferencing tags")
	}
	scale := sf.doubles(d.bo)
	tie := tf.doubles(d.bo)
	if len(scale) < 2 || len(tie) < 5 {
		return raster.Geotransform{}, eris.New("geotiff: short georeferencing tags")
	}
	return raster.Geotransform{
		tie[3] - tie[0]*scale[0], scale[0], 0,
		tie[4] + tie[1]*scale[1], 0, -scale[1],
	}, nil
}

// crsFromGeoKeys extracts an EPSG code from the GeoKey directory, preferring
// a projected CRS over a geographic one. 32767 is the user-defined marker
// and carries no EPSG code.
func crsFromGeoKeys(f field, bo binary.ByteOrder) string {
	ks := f.uints(bo)
	if len(ks) < 4 {
		return ""
	}
	var geographic, projected uint64
	n := int(ks[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+4 > len(ks) {
			break
		}
		if ks[base+1] != 0 {
			continue
		}
		switch ks[base] {
		case 2048:
			geographic = ks[base+3]
		case 3072:
			projected = ks[base+3]
		}
	}
	code := projected
	if code == 0 || code == 32767 {
		code = geographic
	}
	if code == 0 || code == 32767 {
		return ""
	}
	return "EPSG:" + strconv.FormatUint(code, 10)
}
