package variables

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Serialize writes the store's non-built-in variables as
// `count | (included: u32, name, type, payload)*`, little-endian.
// Built-ins are never serialized. When persistOnly is true, only
// variables with the Persisted flag are included (others still occupy a
// record with included=0, so offsets stay stable across calls).
func (s *Store) Serialize(persistOnly bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*variable, 0, len(s.vars))
	for _, v := range s.vars {
		if v.flags.BuiltIn {
			continue
		}
		candidates = append(candidates, v)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(candidates))); err != nil {
		return nil, errkind.Wrap(errkind.IO, "write variable count", err)
	}

	for _, v := range candidates {
		included := uint32(1)
		if persistOnly && !v.flags.Persisted {
			included = 0
		}
		if err := binary.Write(&buf, binary.LittleEndian, included); err != nil {
			return nil, errkind.Wrap(errkind.IO, "write included flag", err)
		}
		if included == 0 {
			continue
		}

		if err := writeString(&buf, v.name); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, int32(v.typ)); err != nil {
			return nil, errkind.Wrap(errkind.IO, "write variable type", err)
		}

		switch v.typ {
		case TypeNumeric:
			if err := binary.Write(&buf, binary.LittleEndian, v.numericValue); err != nil {
				return nil, errkind.Wrap(errkind.IO, "write numeric payload", err)
			}
		default:
			if err := writeString(&buf, v.stringValue); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// Deserialize replaces the store's non-built-in variables with the
// contents of data, which must have been produced by Serialize. Built-ins
// already registered are left untouched.
func (s *Store) Deserialize(data []byte) error {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errkind.Wrap(errkind.Validation, "read variable count", err)
	}

	type decoded struct {
		name string
		typ  Type
		str  string
		num  int64
	}
	entries := make([]decoded, 0, count)

	for i := uint32(0); i < count; i++ {
		var included uint32
		if err := binary.Read(r, binary.LittleEndian, &included); err != nil {
			return errkind.Wrap(errkind.Validation, "read included flag", err)
		}
		if included == 0 {
			continue
		}

		name, err := readString(r)
		if err != nil {
			return err
		}
		var typ int32
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return errkind.Wrap(errkind.Validation, "read variable type", err)
		}

		d := decoded{name: name, typ: Type(typ)}
		switch d.typ {
		case TypeNumeric:
			if err := binary.Read(r, binary.LittleEndian, &d.num); err != nil {
				return errkind.Wrap(errkind.Validation, "read numeric payload", err)
			}
		default:
			str, err := readString(r)
			if err != nil {
				return err
			}
			d.str = str
		}
		entries = append(entries, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*variable, 0, len(s.vars))
	for _, v := range s.vars {
		if v.flags.BuiltIn {
			kept = append(kept, v)
		}
	}
	s.vars = kept

	for _, e := range entries {
		s.insert(&variable{
			name:        e.name,
			typ:         e.typ,
			stringValue: e.str,
			numericValue: e.num,
			flags:       Flags{Persisted: true},
			initialized: true,
		})
	}

	return nil
}

func writeString(buf *bytes.Buffer, value string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(value))); err != nil {
		return errkind.Wrap(errkind.IO, "write string length", err)
	}
	if _, err := buf.WriteString(value); err != nil {
		return errkind.Wrap(errkind.IO, "write string bytes", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", errkind.Wrap(errkind.Validation, "read string length", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errkind.Wrap(errkind.Validation, fmt.Sprintf("read %d string bytes", n), err)
	}
	return string(buf), nil
}
