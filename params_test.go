package mavftp

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildParamRecord appends one record in the wire format spec.md §4.7
// describes: ptype/plen header, compressed name suffix, value, and an
// optional default.
func buildParamRecord(buf []byte, ptype ParamType, hasDefault bool, commonLen, nameSuffix int, name string, value, def float32) []byte {
	ptypeByte := byte(ptype)
	if hasDefault {
		ptypeByte |= 1 << 4
	}
	plen := byte(((nameSuffix - 1) << 4) | commonLen)
	buf = append(buf, ptypeByte, plen)
	buf = append(buf, []byte(name)...)

	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], math.Float32bits(value))
	buf = append(buf, v[:]...)
	if hasDefault {
		var d [4]byte
		binary.LittleEndian.PutUint32(d[:], math.Float32bits(def))
		buf = append(buf, d[:]...)
	}
	return buf
}

func TestDecodeParamsScenario(t *testing.T) {
	// Scenario 6 (spec.md §8): magic 0x671C, FOO=1.0 (default 1.0, so
	// has_default compresses to 0), FOOBAR=2.5 (default 0.0, distinct).
	var buf []byte
	hdr := make([]byte, 6)
	binary.LittleEndian.PutUint16(hdr[0:2], paramMagicDefaults)
	binary.LittleEndian.PutUint16(hdr[2:4], 2)
	binary.LittleEndian.PutUint16(hdr[4:6], 2)
	buf = append(buf, hdr...)

	buf = buildParamRecord(buf, ParamTypeFloat, false, 0, 3, "FOO", 1.0, 0)
	buf = buildParamRecord(buf, ParamTypeFloat, true, 3, 3, "BAR", 2.5, 0.0)

	table, err := DecodeParams(buf)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}

	wantParams := []Param{
		{Name: "FOO", Value: 1.0, Type: ParamTypeFloat},
		{Name: "FOOBAR", Value: 2.5, Type: ParamTypeFloat},
	}
	wantDefaults := []Param{
		{Name: "FOO", Value: 1.0, Type: ParamTypeFloat},
		{Name: "FOOBAR", Value: 0.0, Type: ParamTypeFloat},
	}

	if len(table.Params) != len(wantParams) {
		t.Fatalf("got %d params, want %d", len(table.Params), len(wantParams))
	}
	for i, p := range wantParams {
		if table.Params[i] != p {
			t.Errorf("params[%d] = %+v, want %+v", i, table.Params[i], p)
		}
	}
	for i, d := range wantDefaults {
		if table.Defaults[i] != d {
			t.Errorf("defaults[%d] = %+v, want %+v", i, table.Defaults[i], d)
		}
	}
}

func TestDecodeParamsBadMagic(t *testing.T) {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], 0xDEAD)
	if _, err := DecodeParams(buf); err == nil {
		t.Fatal("expected bad magic error")
	}
}

func TestDecodeParamsCountMismatch(t *testing.T) {
	var buf []byte
	hdr := make([]byte, 6)
	binary.LittleEndian.PutUint16(hdr[0:2], paramMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], 5) // claim 5, provide 1
	buf = append(buf, hdr...)
	buf = buildParamRecord(buf, ParamTypeFloat, false, 0, 3, "FOO", 1.0, 0)

	_, err := DecodeParams(buf)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestEncodeDecodeParamsRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		params       []Param
		defaults     []Param
		withDefaults bool
	}{
		{
			name: "no defaults",
			params: []Param{
				{Name: "ALPHA", Value: 3, Type: ParamTypeInt32},
				{Name: "ALPHABET", Value: -7, Type: ParamTypeInt16},
			},
			withDefaults: false,
		},
		{
			name: "with defaults, one equal",
			params: []Param{
				{Name: "FOO", Value: 1.0, Type: ParamTypeFloat},
				{Name: "FOOBAR", Value: 2.5, Type: ParamTypeFloat},
			},
			defaults: []Param{
				{Name: "FOO", Value: 1.0, Type: ParamTypeFloat},
				{Name: "FOOBAR", Value: 0.0, Type: ParamTypeFloat},
			},
			withDefaults: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := EncodeParams(tc.params, tc.defaults, tc.withDefaults)
			if err != nil {
				t.Fatalf("EncodeParams: %v", err)
			}
			got, err := DecodeParams(blob)
			if err != nil {
				t.Fatalf("DecodeParams: %v", err)
			}
			for i, p := range tc.params {
				if got.Params[i] != p {
					t.Errorf("params[%d] = %+v, want %+v", i, got.Params[i], p)
				}
			}
			if tc.withDefaults {
				for i, d := range tc.defaults {
					if got.Defaults[i] != d {
						t.Errorf("defaults[%d] = %+v, want %+v", i, got.Defaults[i], d)
					}
				}
			}
		})
	}
}
