// Package vision detects square fiducial markers in camera frames. A marker
// is a 6x6 cell square: a one-cell black border around a 4x4 payload grid
// encoding an id from a fixed dictionary.
package vision

import (
	"fmt"
	"math/bits"
	"math/rand"
	"sync"
)

// DictionarySize is the number of ids in the default dictionary.
const DictionarySize = 1000

// dictionarySeed fixes the generated code set. Changing it invalidates every
// printed marker in the field.
const dictionarySeed = 0x41524e41 // "ARNA"

// Dictionary maps 16-bit payload codes to marker ids. Codes are stored for
// all four rotations so a detection does not depend on marker orientation.
type Dictionary struct {
	codes  []uint16
	lookup map[uint16]codeRef
}

type codeRef struct {
	id  int
	rot int // clockwise quarter turns from the canonical code
}

var (
	defaultDict     *Dictionary
	defaultDictOnce sync.Once
)

// DefaultDictionary returns the process-wide dictionary. Generation is
// deterministic, so every process agrees on the id of a printed marker.
func DefaultDictionary() *Dictionary {
	defaultDictOnce.Do(func() {
		defaultDict = generateDictionary(DictionarySize, dictionarySeed)
	})
	return defaultDict
}

// generateDictionary draws random payloads and keeps those that are
// rotation-asymmetric, distinct from every rotation of every accepted code,
// and not too close to all-black or all-white.
func generateDictionary(size int, seed int64) *Dictionary {
	rng := rand.New(rand.NewSource(seed))
	d := &Dictionary{
		codes:  make([]uint16, 0, size),
		lookup: make(map[uint16]codeRef, size*4),
	}

	const maxAttempts = 1 << 22
	for attempt := 0; attempt < maxAttempts && len(d.codes) < size; attempt++ {
		code := uint16(rng.Intn(1 << 16))
		if !d.admit(code) {
			continue
		}
		id := len(d.codes)
		d.codes = append(d.codes, code)
		c := code
		for rot := 0; rot < 4; rot++ {
			d.lookup[c] = codeRef{id: id, rot: rot}
			c = rotateCW(c)
		}
	}
	if len(d.codes) < size {
		panic(fmt.Sprintf("vision: dictionary generation exhausted at %d/%d codes", len(d.codes), size))
	}
	return d
}

func (d *Dictionary) admit(code uint16) bool {
	white := bits.OnesCount16(code)
	if white < 4 || white > 12 {
		return false
	}
	c := code
	for rot := 0; rot < 4; rot++ {
		if rot > 0 && c == code {
			return false // rotationally symmetric
		}
		if _, taken := d.lookup[c]; taken {
			return false
		}
		c = rotateCW(c)
	}
	return true
}

// Len returns the number of ids.
func (d *Dictionary) Len() int { return len(d.codes) }

// Code returns the canonical payload of id. Bit r*4+c is set when the cell
// at row r, column c is white.
func (d *Dictionary) Code(id int) (uint16, error) {
	if id < 0 || id >= len(d.codes) {
		return 0, fmt.Errorf("marker id %d out of range [0,%d)", id, len(d.codes))
	}
	return d.codes[id], nil
}

// Identify matches a sampled payload against the dictionary. rot is the
// number of clockwise quarter turns separating the sampled grid from the
// canonical code, which is also the image-space corner index where the
// marker's own top-left corner sits.
func (d *Dictionary) Identify(code uint16) (id, rot int, ok bool) {
	ref, ok := d.lookup[code]
	if !ok {
		return 0, 0, false
	}
	return ref.id, ref.rot, true
}

// rotateCW turns the 4x4 payload grid one quarter turn clockwise.
func rotateCW(code uint16) uint16 {
	var out uint16
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if code&(1<<uint((3-c)*4+r)) != 0 {
				out |= 1 << uint(r*4+c)
			}
		}
	}
	return out
}
