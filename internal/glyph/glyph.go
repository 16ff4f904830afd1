// Package glyph merges SDF glyph range PBFs for composite font stacks.
// The wire format is the MapLibre fontstack protobuf: a top-level message
// with repeated fontstack(1), each carrying name(1), range(2) and repeated
// glyph(3) where glyph starts with id(1).
package glyph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldStacks     = 1
	fieldStackName  = 1
	fieldStackRange = 2
	fieldStackGlyph = 3
	fieldGlyphID    = 1
)

// ErrDecode reports a malformed glyph PBF.
var ErrDecode = errors.New("malformed glyph pbf")

type glyphRec struct {
	id  uint64
	raw []byte
}

type stack struct {
	name   string
	rng    string
	glyphs []glyphRec
}

// Combine merges an ordered list of glyph range buffers into one. Glyph
// ids are resolved earlier-wins; the output stack name is the comma-joined
// input names in input order; glyphs are sorted ascending by id.
func Combine(buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("%w: no input buffers", ErrDecode)
	}
	if len(buffers) == 1 {
		return buffers[0], nil
	}

	var (
		names  []string
		rng    string
		merged []glyphRec
		seen   = make(map[uint64]struct{})
	)

	for _, buf := range buffers {
		st, err := parseStack(buf)
		if err != nil {
			return nil, err
		}
		names = append(names, st.name)
		if rng == "" {
			rng = st.rng
		}
		for _, g := range st.glyphs {
			if _, dup := seen[g.id]; dup {
				continue
			}
			seen[g.id] = struct{}{}
			merged = append(merged, g)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].id < merged[j].id })

	return encodeStack(stack{
		name:   strings.Join(names, ","),
		rng:    rng,
		glyphs: merged,
	}), nil
}

// parseStack decodes the first fontstack of a glyph buffer.
func parseStack(data []byte) (*stack, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		data = data[n:]

		if num == fieldStacks && typ == protowire.BytesType {
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad stack field", ErrDecode)
			}
			return parseFontstack(body)
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad field %d", ErrDecode, num)
		}
		data = data[n:]
	}
	return nil, fmt.Errorf("%w: no fontstack", ErrDecode)
}

func parseFontstack(data []byte) (*stack, error) {
	st := &stack{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad fontstack tag", ErrDecode)
		}
		data = data[n:]

		switch {
		case num == fieldStackName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad name", ErrDecode)
			}
			st.name = string(v)
			data = data[n:]
		case num == fieldStackRange && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad range", ErrDecode)
			}
			st.rng = string(v)
			data = data[n:]
		case num == fieldStackGlyph && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad glyph", ErrDecode)
			}
			id, err := glyphID(v)
			if err != nil {
				return nil, err
			}
			st.glyphs = append(st.glyphs, glyphRec{id: id, raw: v})
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad field %d", ErrDecode, num)
			}
			data = data[n:]
		}
	}
	return st, nil
}

// glyphID extracts the id field from a raw glyph record.
func glyphID(data []byte) (uint64, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, fmt.Errorf("%w: bad glyph tag", ErrDecode)
		}
		data = data[n:]

		if num == fieldGlyphID && typ == protowire.VarintType {
			id, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, fmt.Errorf("%w: bad glyph id", ErrDecode)
			}
			return id, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, fmt.Errorf("%w: bad glyph field %d", ErrDecode, num)
		}
		data = data[n:]
	}
	return 0, fmt.Errorf("%w: glyph without id", ErrDecode)
}

func encodeStack(st stack) []byte {
	var body []byte
	body = protowire.AppendTag(body, fieldStackName, protowire.BytesType)
	body = protowire.AppendString(body, st.name)
	body = protowire.AppendTag(body, fieldStackRange, protowire.BytesType)
	body = protowire.AppendString(body, st.rng)
	for _, g := range st.glyphs {
		body = protowire.AppendTag(body, fieldStackGlyph, protowire.BytesType)
		body = protowire.AppendBytes(body, g.raw)
	}

	var out []byte
	out = protowire.AppendTag(out, fieldStacks, protowire.BytesType)
	out = protowire.AppendBytes(out, body)
	return out
}
