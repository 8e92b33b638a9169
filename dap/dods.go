package dap

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gigapi/gigapi-dars/schema"
	"github.com/gigapi/gigapi-dars/slab"
)

// Reader reads one hyperslab. *slab.Resolver implements it.
type Reader interface {
	Read(ctx context.Context, src slab.Source, variable string, ranges []schema.Range) (*schema.Array, error)
}

// DataSeparator ends the DDS of a data response.
const DataSeparator = "Data:\n"

// Fetch reads every part of every entry. It returns only when all reads
// succeeded, so nothing is written for a failed request.
func Fetch(ctx context.Context, r Reader, src slab.Source, entries []Entry) ([][]*schema.Array, error) {
	out := make([][]*schema.Array, len(entries))
	for i, e := range entries {
		for _, p := range e.Parts() {
			a, err := r.Read(ctx, src, p.Name, p.Ranges)
			if err != nil {
				return nil, err
			}
			out[i] = append(out[i], a)
		}
	}
	return out, nil
}

// DODS builds the complete data response for c: the constrained DDS, the
// separator and the XDR payload.
func DODS(ctx context.Context, r Reader, src slab.Source, c Constraint) ([]byte, error) {
	ds := src.Schema()
	sels, err := Select(ds, c)
	if err != nil {
		return nil, err
	}
	entries := Layout(ds, sels)
	arrays, err := Fetch(ctx, r, src, entries)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(DDS(ds.Name(), entries))
	buf.WriteByte('\n')
	buf.WriteString(DataSeparator)
	for _, parts := range arrays {
		for _, a := range parts {
			if err := WriteXDR(&buf, a); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

var zeros [4]byte

func pad(n int) int {
	return (4 - n%4) % 4
}

// WriteXDR encodes one array. Arrays are prefixed by their element count
// written twice, scalars have no prefix. Bytes are padded to four. Signed
// bytes and 16 bit integers are widened to 32 bits. Strings are length
// prefixed and padded.
// String arrays carry the count once.
func WriteXDR(w io.Writer, a *schema.Array) error {
	if err := a.Validate(); err != nil {
		return err
	}
	n := a.Len()
	scalar := len(a.Shape) == 0
	var hdr [8]byte
	if !scalar {
		binary.BigEndian.PutUint32(hdr[0:], uint32(n))
		binary.BigEndian.PutUint32(hdr[4:], uint32(n))
		size := 8
		if a.Type == schema.String {
			size = 4
		}
		if _, err := w.Write(hdr[:size]); err != nil {
			return err
		}
	}

	switch a.Type {
	case schema.Byte, schema.Char:
		if _, err := w.Write(a.Data); err != nil {
			return err
		}
		_, err := w.Write(zeros[:pad(len(a.Data))])
		return err

	case schema.Int8:
		out := make([]byte, 4*n)
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint32(out[4*i:], uint32(int32(int8(a.Data[i]))))
		}
		_, err := w.Write(out)
		return err

	case schema.Int16, schema.UInt16:
		out := make([]byte, 4*n)
		for i := 0; i < n; i++ {
			v := binary.BigEndian.Uint16(a.Data[2*i:])
			var wide uint32
			if a.Type == schema.Int16 {
				wide = uint32(int32(int16(v)))
			} else {
				wide = uint32(v)
			}
			binary.BigEndian.PutUint32(out[4*i:], wide)
		}
		_, err := w.Write(out)
		return err

	case schema.Int32, schema.UInt32, schema.Float32,
		schema.Int64, schema.UInt64, schema.Float64:
		// stored big-endian at native width already
		_, err := w.Write(a.Data)
		return err

	case schema.String:
		for _, s := range a.Strings {
			binary.BigEndian.PutUint32(hdr[0:], uint32(len(s)))
			if _, err := w.Write(hdr[:4]); err != nil {
				return err
			}
			if _, err := io.WriteString(w, s); err != nil {
				return err
			}
			if _, err := w.Write(zeros[:pad(len(s))]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("cannot encode %s", a.Type)
}
