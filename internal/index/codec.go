package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// File layout, all integers little-endian:
//
//	magic   [4]byte "DQIX"
//	version uint16
//	model   uint16 length + bytes
//	dim     uint32
//	count   uint32
//	data    count*dim float32
const (
	codecVersion = 1
	maxModelName = 1 << 10
	maxVectors   = 1 << 24
	maxDim       = 1 << 16

	// readBlock is the number of floats decoded per read.
	readBlock = 1 << 14
)

var magic = [4]byte{'D', 'Q', 'I', 'X'}

// ErrCorrupt is returned by Decode for truncated or malformed input.
var ErrCorrupt = errors.New("corrupt index file")

// Encode writes the index together with the name of the model that produced its vectors.
func (f *Flat) Encode(w io.Writer, model string) error {
	if len(model) > maxModelName {
		return fmt.Errorf("model name too long: %d bytes", len(model))
	}

	bw := bufio.NewWriter(w)
	header := make([]byte, 0, 4+2+2+len(model)+4+4)
	header = append(header, magic[:]...)
	header = binary.LittleEndian.AppendUint16(header, codecVersion)
	header = binary.LittleEndian.AppendUint16(header, uint16(len(model)))
	header = append(header, model...)
	header = binary.LittleEndian.AppendUint32(header, uint32(f.dim))
	header = binary.LittleEndian.AppendUint32(header, uint32(f.Len()))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, x := range f.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads an index written by Encode and returns it with its model name.
func Decode(r io.Reader) (*Flat, string, error) {
	br := bufio.NewReader(r)

	var head [8]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return nil, "", fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if [4]byte(head[:4]) != magic {
		return nil, "", fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(head[4:6]); v != codecVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	nameLen := int(binary.LittleEndian.Uint16(head[6:8]))
	if nameLen > maxModelName {
		return nil, "", fmt.Errorf("%w: model name length %d", ErrCorrupt, nameLen)
	}

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, "", fmt.Errorf("%w: model name: %v", ErrCorrupt, err)
	}

	var sizes [8]byte
	if _, err := io.ReadFull(br, sizes[:]); err != nil {
		return nil, "", fmt.Errorf("%w: sizes: %v", ErrCorrupt, err)
	}
	dim := int(binary.LittleEndian.Uint32(sizes[:4]))
	count := int(binary.LittleEndian.Uint32(sizes[4:]))
	if dim <= 0 || dim > maxDim || count > maxVectors {
		return nil, "", fmt.Errorf("%w: dim=%d count=%d", ErrCorrupt, dim, count)
	}

	// Storage grows with what was actually read, so a header that
	// overstates the payload fails on the short read.
	total := dim * count
	data := make([]float32, 0, min(total, readBlock))
	buf := make([]byte, 4*readBlock)
	for len(data) < total {
		n := min(total-len(data), readBlock)
		if _, err := io.ReadFull(br, buf[:4*n]); err != nil {
			return nil, "", fmt.Errorf("%w: vectors: %v", ErrCorrupt, err)
		}
		for i := 0; i < n; i++ {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		}
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, "", fmt.Errorf("%w: trailing data", ErrCorrupt)
	}

	f := &Flat{dim: dim, data: data}
	return f, string(name), nil
}
