// Package sim reads and writes .sim genotyping intensity files: a fixed
// 16-byte header followed by one fixed-layout record per sample, each
// holding an intensity value per probe per channel.
package sim

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Recognized number formats for intensity values.
const (
	FormatFloat  uint8 = 0 // 4-byte little-endian float32
	FormatUint16 uint8 = 1 // 2-byte little-endian unsigned fixed-point
)

// Version is the .sim format version this package reads and writes.
const Version uint8 = 1

const headerSize = 16

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// ErrTruncated is returned when a file ends before the declared sample
// count has been read.
var ErrTruncated = errors.New("sim: truncated record data")

// Header describes a .sim dataset. All fields are constant for the
// lifetime of a Reader.
type Header struct {
	Version        uint8
	SampleNameSize uint16 // fixed byte width of the sample name field
	NumSamples     uint32
	NumProbes      uint32
	NumChannels    uint8
	NumberFormat   uint8
}

func (h Header) validate() error {
	if h.Version != Version {
		return fmt.Errorf("sim: unsupported version %d", h.Version)
	}
	if h.NumberFormat != FormatFloat && h.NumberFormat != FormatUint16 {
		return fmt.Errorf("sim: unknown number format %d", h.NumberFormat)
	}
	if h.SampleNameSize == 0 {
		return errors.New("sim: sample name size must be at least 1")
	}
	if h.NumProbes == 0 {
		return errors.New("sim: probe count must be at least 1")
	}
	if h.NumChannels == 0 {
		return errors.New("sim: channel count must be at least 1")
	}
	return nil
}

// FormatName returns a human-readable name for a number format tag.
func FormatName(format uint8) string {
	switch format {
	case FormatFloat:
		return "float32"
	case FormatUint16:
		return "uint16"
	default:
		return fmt.Sprintf("unknown(%d)", format)
	}
}

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionXz
)

// Reader is a sequential cursor over the records of one .sim file.
// It is not safe for concurrent use; only one pass may be in flight at
// a time.
type Reader struct {
	f    *os.File
	br   *bufio.Reader
	hdr  Header
	comp compression
	pos  uint32

	// decode converts one encoded value at the start of its argument.
	// Chosen once at open time so record consumers never branch on the
	// number format.
	decode    func(b []byte) float64
	valueSize int

	buf  []byte // one raw record
	vals []float64
}

// Open validates the header of a .sim file and returns a Reader
// positioned at the first record. Gzip- and xz-compressed files are
// detected by magic number (or a .gz/.xz suffix for empty files) and
// decompressed transparently.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sim: open %s: %w", path, err)
	}
	r := &Reader{f: f}
	if r.comp, err = detectCompression(f, path); err != nil {
		f.Close()
		return nil, err
	}
	if err = r.restart(); err != nil {
		f.Close()
		return nil, err
	}
	if r.hdr, err = readHeader(r.br); err != nil {
		f.Close()
		return nil, err
	}
	if err = r.hdr.validate(); err != nil {
		f.Close()
		return nil, err
	}
	switch r.hdr.NumberFormat {
	case FormatFloat:
		r.valueSize = 4
		r.decode = decodeFloat32
	case FormatUint16:
		r.valueSize = 2
		r.decode = decodeUint16
	}
	n := int(r.hdr.NumProbes) * int(r.hdr.NumChannels)
	r.buf = make([]byte, int(r.hdr.SampleNameSize)+n*r.valueSize)
	r.vals = make([]float64, n)
	return r, nil
}

// Header returns a copy of the dataset header.
func (r *Reader) Header() Header {
	return r.hdr
}

// Pos reports the number of records read since the last reset.
func (r *Reader) Pos() uint32 {
	return r.pos
}

// Reset repositions the cursor to the first record. It may be called at
// any time, including before any read and after exhaustion.
func (r *Reader) Reset() error {
	if err := r.restart(); err != nil {
		return err
	}
	if _, err := r.br.Discard(headerSize); err != nil {
		return fmt.Errorf("sim: reset: %w", err)
	}
	return nil
}

// NextRecord returns the next sample name and its decoded intensity
// values, indexed probe*NumChannels+channel. It returns io.EOF exactly
// after the declared sample count has been read since the last reset,
// and ErrTruncated if the file ends early. The returned slice is reused
// and valid only until the next call.
func (r *Reader) NextRecord() (string, []float64, error) {
	if r.pos >= r.hdr.NumSamples {
		return "", nil, io.EOF
	}
	if _, err := io.ReadFull(r.br, r.buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", nil, fmt.Errorf("%w: sample %d of %d", ErrTruncated, r.pos+1, r.hdr.NumSamples)
		}
		return "", nil, fmt.Errorf("sim: read record: %w", err)
	}
	name := string(bytes.TrimRight(r.buf[:r.hdr.SampleNameSize], "\x00"))
	data := r.buf[r.hdr.SampleNameSize:]
	for i := range r.vals {
		r.vals[i] = r.decode(data[i*r.valueSize:])
	}
	r.pos++
	return name, r.vals, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// restart rewinds the underlying file and rebuilds the (possibly
// decompressing) read stack from byte zero. Compressed streams are not
// seekable, so rewinding reopens the decompressor instead.
func (r *Reader) restart() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sim: seek: %w", err)
	}
	var src io.Reader = r.f
	switch r.comp {
	case compressionGzip:
		gz, err := gzip.NewReader(r.f)
		if err != nil {
			return fmt.Errorf("sim: gzip: %w", err)
		}
		src = gz
	case compressionXz:
		xr, err := xz.NewReader(r.f)
		if err != nil {
			return fmt.Errorf("sim: xz: %w", err)
		}
		src = xr
	}
	r.br = bufio.NewReader(src)
	r.pos = 0
	return nil
}

func detectCompression(f *os.File, path string) (compression, error) {
	var sig [6]byte
	n, _ := io.ReadFull(f, sig[:])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return compressionNone, fmt.Errorf("sim: seek: %w", err)
	}
	switch {
	case n >= 2 && sig[0] == 0x1f && sig[1] == 0x8b:
		return compressionGzip, nil
	case n >= len(xzMagic) && bytes.Equal(sig[:len(xzMagic)], xzMagic):
		return compressionXz, nil
	case strings.HasSuffix(path, ".gz"):
		return compressionGzip, nil
	case strings.HasSuffix(path, ".xz"):
		return compressionXz, nil
	}
	return compressionNone, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		return Header{}, fmt.Errorf("sim: short header: %w", err)
	}
	if raw[0] != 's' || raw[1] != 'i' || raw[2] != 'm' {
		return Header{}, errors.New("sim: bad magic, not a .sim file")
	}
	return Header{
		Version:        raw[3],
		SampleNameSize: binary.LittleEndian.Uint16(raw[4:6]),
		NumSamples:     binary.LittleEndian.Uint32(raw[6:10]),
		NumProbes:      binary.LittleEndian.Uint32(raw[10:14]),
		NumChannels:    raw[14],
		NumberFormat:   raw[15],
	}, nil
}

func decodeFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func decodeUint16(b []byte) float64 {
	return float64(binary.LittleEndian.Uint16(b))
}
