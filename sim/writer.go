package sim

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Writer emits a .sim file record by record. The header is written on
// creation; Close fails unless exactly the declared number of records
// has been written.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	hdr     Header
	written uint32

	encode    func(dst []byte, v float64) error
	valueSize int
}

// Create writes the header for a new .sim file and returns a Writer for
// its records. A zero hdr.Version is filled in with the current format
// version before validation.
func Create(path string, hdr Header) (*Writer, error) {
	if hdr.Version == 0 {
		hdr.Version = Version
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sim: create %s: %w", path, err)
	}
	w := &Writer{f: f, bw: bufio.NewWriter(f), hdr: hdr}
	switch hdr.NumberFormat {
	case FormatFloat:
		w.valueSize = 4
		w.encode = encodeFloat32
	case FormatUint16:
		w.valueSize = 2
		w.encode = encodeUint16
	}
	var raw [headerSize]byte
	raw[0], raw[1], raw[2] = 's', 'i', 'm'
	raw[3] = hdr.Version
	binary.LittleEndian.PutUint16(raw[4:6], hdr.SampleNameSize)
	binary.LittleEndian.PutUint32(raw[6:10], hdr.NumSamples)
	binary.LittleEndian.PutUint32(raw[10:14], hdr.NumProbes)
	raw[14] = hdr.NumChannels
	raw[15] = hdr.NumberFormat
	if _, err := w.bw.Write(raw[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("sim: write header: %w", err)
	}
	return w, nil
}

// WriteRecord appends one sample record. The name must fit the header's
// sample name size and values must hold exactly NumProbes*NumChannels
// entries, indexed probe*NumChannels+channel.
func (w *Writer) WriteRecord(name string, values []float64) error {
	if len(name) > int(w.hdr.SampleNameSize) {
		return fmt.Errorf("sim: sample name %q exceeds the %d-byte name field", name, w.hdr.SampleNameSize)
	}
	want := int(w.hdr.NumProbes) * int(w.hdr.NumChannels)
	if len(values) != want {
		return fmt.Errorf("sim: sample %q has %d values, want %d", name, len(values), want)
	}
	if w.written >= w.hdr.NumSamples {
		return fmt.Errorf("sim: more than the declared %d samples written", w.hdr.NumSamples)
	}
	padded := make([]byte, w.hdr.SampleNameSize)
	copy(padded, name)
	if _, err := w.bw.Write(padded); err != nil {
		return fmt.Errorf("sim: write record: %w", err)
	}
	buf := make([]byte, w.valueSize)
	for _, v := range values {
		if err := w.encode(buf, v); err != nil {
			return fmt.Errorf("sim: sample %q: %w", name, err)
		}
		if _, err := w.bw.Write(buf); err != nil {
			return fmt.Errorf("sim: write record: %w", err)
		}
	}
	w.written++
	return nil
}

// Close flushes and closes the file. It fails if the number of records
// written differs from the declared sample count.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("sim: flush: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("sim: close: %w", err)
	}
	if w.written != w.hdr.NumSamples {
		return fmt.Errorf("sim: wrote %d of %d declared samples", w.written, w.hdr.NumSamples)
	}
	return nil
}

func encodeFloat32(dst []byte, v float64) error {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	return nil
}

func encodeUint16(dst []byte, v float64) error {
	if v != math.Trunc(v) || v < 0 || v > math.MaxUint16 {
		return fmt.Errorf("value %v is not representable as uint16", v)
	}
	binary.LittleEndian.PutUint16(dst, uint16(v))
	return nil
}
