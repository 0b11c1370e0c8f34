package mavftp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Parameter blob magic values (spec.md §4.7).
const (
	paramMagic         = 0x671B
	paramMagicDefaults = 0x671C
)

// ParamType is the type tag carried by each parameter blob entry.
type ParamType uint8

const (
	ParamTypeInt8  ParamType = 1
	ParamTypeInt16 ParamType = 2
	ParamTypeInt32 ParamType = 3
	ParamTypeFloat ParamType = 4
)

// Decoder errors for the parameter blob format (spec.md §4.7).
var (
	ErrBadMagic      = errors.New("mavftp: param blob: bad magic")
	ErrBadType       = errors.New("mavftp: param blob: bad type tag")
	ErrCountMismatch = errors.New("mavftp: param blob: decoded count does not match header")
)

// Param is a single decoded (name, value, type) entry.
type Param struct {
	Name  string
	Value float64
	Type  ParamType
}

// ParamTable is the decoded result of a parameter blob: a flat list of
// parameters and, if the blob carried per-entry defaults, a parallel list
// of the same length and order.
type ParamTable struct {
	Params   []Param
	Defaults []Param // nil when the blob had no defaults section
}

func paramTypeLen(t ParamType) (int, bool) {
	switch t {
	case ParamTypeInt8:
		return 1, true
	case ParamTypeInt16:
		return 2, true
	case ParamTypeInt32:
		return 4, true
	case ParamTypeFloat:
		return 4, true
	default:
		return 0, false
	}
}

func decodeParamValue(t ParamType, data []byte) float64 {
	switch t {
	case ParamTypeInt8:
		return float64(int8(data[0]))
	case ParamTypeInt16:
		return float64(int16(binary.LittleEndian.Uint16(data)))
	case ParamTypeInt32:
		return float64(int32(binary.LittleEndian.Uint32(data)))
	case ParamTypeFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	default:
		return 0
	}
}

func encodeParamValue(t ParamType, v float64, out []byte) {
	switch t {
	case ParamTypeInt8:
		out[0] = byte(int8(v))
	case ParamTypeInt16:
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	case ParamTypeInt32:
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	case ParamTypeFloat:
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	}
}

// DecodeParams decodes a parameter blob (spec.md §4.7), a compact
// run-length/name-prefix-compressed binary table optionally carrying
// per-entry defaults, as transferred via files named like
// "@PARAM/param.pck?withdefaults=1".
func DecodeParams(data []byte) (*ParamTable, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: blob shorter than header", ErrBadMagic)
	}
	magic := binary.LittleEndian.Uint16(data[0:2])
	totalParams := binary.LittleEndian.Uint16(data[4:6])
	if magic != paramMagic && magic != paramMagicDefaults {
		return nil, fmt.Errorf("%w: 0x%x", ErrBadMagic, magic)
	}
	withDefaults := magic == paramMagicDefaults
	data = data[6:]

	table := &ParamTable{}
	var lastName []byte
	count := 0

	for len(data) > 0 {
		for len(data) > 0 && data[0] == 0 {
			data = data[1:]
		}
		if len(data) == 0 {
			break
		}
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: truncated record header", ErrBadType)
		}

		ptypeByte, plen := data[0], data[1]
		flags := (ptypeByte >> 4) & 0x0F
		hasDefault := withDefaults && flags&1 != 0
		ptype := ParamType(ptypeByte & 0x0F)

		typeLen, ok := paramTypeLen(ptype)
		if !ok {
			return nil, fmt.Errorf("%w: 0x%x", ErrBadType, ptype)
		}

		defaultLen := 0
		if hasDefault {
			defaultLen = typeLen
		}

		nameLen := int((plen>>4)&0x0F) + 1
		commonLen := int(plen & 0x0F)
		if commonLen > len(lastName) {
			commonLen = len(lastName)
		}

		rest := data[2:]
		if len(rest) < nameLen+typeLen+defaultLen {
			return nil, fmt.Errorf("%w: truncated record body", ErrBadType)
		}

		name := append(append([]byte(nil), lastName[:commonLen]...), rest[:nameLen]...)
		vdata := rest[nameLen : nameLen+typeLen+defaultLen]
		data = rest[nameLen+typeLen+defaultLen:]

		if withDefaults {
			if hasDefault {
				v1 := decodeParamValue(ptype, vdata[:typeLen])
				v2 := decodeParamValue(ptype, vdata[typeLen:])
				table.Params = append(table.Params, Param{Name: string(name), Value: v1, Type: ptype})
				table.Defaults = append(table.Defaults, Param{Name: string(name), Value: v2, Type: ptype})
			} else {
				v := decodeParamValue(ptype, vdata)
				table.Params = append(table.Params, Param{Name: string(name), Value: v, Type: ptype})
				table.Defaults = append(table.Defaults, Param{Name: string(name), Value: v, Type: ptype})
			}
		} else {
			v := decodeParamValue(ptype, vdata)
			table.Params = append(table.Params, Param{Name: string(name), Value: v, Type: ptype})
		}

		lastName = name
		count++
	}

	if count != int(totalParams) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrCountMismatch, count, totalParams)
	}
	return table, nil
}

// EncodeParams encodes params (and, if withDefaults, defaults — which must
// be the same length and order as params) into the compact blob format
// DecodeParams reads. An entry whose value equals its default compresses
// with has_default=0, matching the decoder's own round-trip convention
// (spec.md §8's encode/decode law).
func EncodeParams(params []Param, defaults []Param, withDefaults bool) ([]byte, error) {
	if withDefaults && len(defaults) != len(params) {
		return nil, fmt.Errorf("mavftp: encode params: defaults length %d != params length %d", len(defaults), len(params))
	}

	magic := uint16(paramMagic)
	if withDefaults {
		magic = paramMagicDefaults
	}

	hdr := make([]byte, 6)
	binary.LittleEndian.PutUint16(hdr[0:2], magic)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(params)))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(params)))

	buf := hdr
	var lastName []byte
	for i, p := range params {
		typeLen, ok := paramTypeLen(p.Type)
		if !ok {
			return nil, fmt.Errorf("%w: 0x%x", ErrBadType, p.Type)
		}

		hasDefault := false
		if withDefaults && defaults[i].Value != p.Value {
			hasDefault = true
		}

		name := []byte(p.Name)
		commonLen := 0
		for commonLen < len(lastName) && commonLen < len(name) && commonLen < 0x0F && lastName[commonLen] == name[commonLen] {
			commonLen++
		}
		suffix := name[commonLen:]
		nameLen := len(suffix)
		if nameLen < 1 || nameLen > 16 {
			return nil, fmt.Errorf("mavftp: encode params: name suffix length %d out of range for %q", nameLen, p.Name)
		}

		ptypeByte := byte(p.Type)
		if hasDefault {
			ptypeByte |= 1 << 4
		}
		plen := byte(((nameLen - 1) << 4) | commonLen)

		rec := make([]byte, 2+nameLen+typeLen)
		rec[0] = ptypeByte
		rec[1] = plen
		copy(rec[2:], suffix)
		encodeParamValue(p.Type, p.Value, rec[2+nameLen:])

		buf = append(buf, rec...)
		if withDefaults {
			def := make([]byte, typeLen)
			if hasDefault {
				encodeParamValue(p.Type, defaults[i].Value, def)
			} else {
				encodeParamValue(p.Type, p.Value, def)
			}
			if hasDefault {
				buf = append(buf, def...)
			}
		}

		lastName = name
	}

	return buf, nil
}

// GetParameters fetches "@PARAM/param.pck?withdefaults=1" from the target
// and decodes it, matching the original's ftp_param_decode convenience
// wiring (SPEC_FULL.md §12). callback receives the decoded table, or an
// error if the Get or the decode failed.
func (e *Engine) GetParameters(callback func(*ParamTable, error)) error {
	return e.Get("@PARAM/param.pck?withdefaults=1", "-", func(r io.ReadSeeker) {
		if r == nil {
			callback(nil, ErrCanceled)
			return
		}
		data, err := io.ReadAll(r)
		if err != nil {
			callback(nil, err)
			return
		}
		table, err := DecodeParams(data)
		callback(table, err)
	}, nil)
}
