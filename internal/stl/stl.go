// Package stl recognizes ASCII vs. binary STL and normalizes binary input
// to ASCII for publication. It does not decode a mesh into triangles for
// display — that is the viewer's job.
package stl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// asciiPrefix is the literal that disambiguates legitimate STL content from
// the WASM_RENDER_REQUEST sentinel.
const asciiPrefix = "solid "

// binaryHeaderSize is the fixed 80-byte header preceding the uint32
// triangle count in binary STL.
const binaryHeaderSize = 80

// triangleRecordSize is the fixed per-triangle record size in binary STL:
// 12 floats (normal + 3 vertices) of 4 bytes each, plus a 2-byte attribute
// byte count.
const triangleRecordSize = 12*4 + 2

// IsASCII reports whether b is ASCII STL, i.e. begins with "solid ".
func IsASCII(b []byte) bool {
	return bytes.HasPrefix(b, []byte(asciiPrefix))
}

// IsBinary reports whether b has a plausible binary STL shape: at least a
// header and count, and the declared triangle count matches the remaining
// byte length exactly.
func IsBinary(b []byte) bool {
	if len(b) < binaryHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(b[binaryHeaderSize : binaryHeaderSize+4])
	want := binaryHeaderSize + 4 + int(count)*triangleRecordSize
	return want == len(b)
}

// Triangle is one facet of a mesh: a unit normal and three vertices, in the
// order they appear in the STL stream. Orientation and order are preserved
// through ASCII<->binary round-trips.
type Triangle struct {
	Normal   [3]float32
	Vertices [3][3]float32
}

// Normalize converts b to ASCII STL if it is binary, or returns it
// unchanged if already ASCII. It is an error to normalize bytes that are
// neither.
func Normalize(name string, b []byte) ([]byte, error) {
	if IsASCII(b) {
		return b, nil
	}
	if !IsBinary(b) {
		return nil, fmt.Errorf("stl: input is neither ASCII nor binary STL")
	}
	tris, err := decodeBinary(b)
	if err != nil {
		return nil, err
	}
	return encodeASCII(name, tris), nil
}

// decodeBinary parses the 80-byte header + uint32 count + 50-byte-per-
// triangle binary STL layout.
func decodeBinary(b []byte) ([]Triangle, error) {
	count := binary.LittleEndian.Uint32(b[binaryHeaderSize : binaryHeaderSize+4])
	tris := make([]Triangle, 0, count)
	off := binaryHeaderSize + 4
	for i := uint32(0); i < count; i++ {
		if off+triangleRecordSize > len(b) {
			return nil, fmt.Errorf("stl: truncated binary STL at triangle %d", i)
		}
		var t Triangle
		t.Normal = readVec3(b[off:])
		off += 12
		for v := 0; v < 3; v++ {
			t.Vertices[v] = readVec3(b[off:])
			off += 12
		}
		off += 2 // attribute byte count, unused
		tris = append(tris, t)
	}
	return tris, nil
}

func readVec3(b []byte) [3]float32 {
	var v [3]float32
	for i := range v {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v
}

// encodeASCII writes the "solid <name>" ... "endsolid <name>" form,
// preserving triangle order and orientation.
func encodeASCII(name string, tris []Triangle) []byte {
	if name == "" {
		name = "model"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "solid %s\n", name)
	for _, t := range tris {
		fmt.Fprintf(&b, "facet normal %g %g %g\n", t.Normal[0], t.Normal[1], t.Normal[2])
		b.WriteString("outer loop\n")
		for _, v := range t.Vertices {
			fmt.Fprintf(&b, "vertex %g %g %g\n", v[0], v[1], v[2])
		}
		b.WriteString("endloop\n")
		b.WriteString("endfacet\n")
	}
	fmt.Fprintf(&b, "endsolid %s\n", name)
	return []byte(b.String())
}

// EncodeBinary writes the fixed-width binary STL layout for tris, used by
// tests to construct round-trip fixtures and by backends that only have a
// binary encoder available.
func EncodeBinary(tris []Triangle) []byte {
	buf := make([]byte, binaryHeaderSize+4+len(tris)*triangleRecordSize)
	binary.LittleEndian.PutUint32(buf[binaryHeaderSize:], uint32(len(tris)))
	off := binaryHeaderSize + 4
	for _, t := range tris {
		writeVec3(buf[off:], t.Normal)
		off += 12
		for _, v := range t.Vertices {
			writeVec3(buf[off:], v)
			off += 12
		}
		off += 2
	}
	return buf
}

func writeVec3(b []byte, v [3]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
}

// FacetCount returns the number of "facet normal" lines in ASCII STL b,
// used by tests asserting triangle counts.
func FacetCount(b []byte) int {
	return bytes.Count(b, []byte("facet normal "))
}
