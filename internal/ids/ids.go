// Package ids issues the 128-bit identifiers the gateway uses to address
// entity instances.
//
// An identifier is rendered as 32 lowercase hex digits. The high 64 bits are
// a per-generator random constant that never falls into the range reserved
// for the gateway's well-known ids; the low 64 bits count up from a random
// starting point, one step per identifier issued.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"

	"github.com/google/uuid"
)

// reservedPrefix bounds the high words used by built-in gateway entities
// (the root folder, the internal identity provider, ...).
const reservedPrefix = 1 << 16

// Generator issues process-unique identifiers. The zero value is not usable,
// use New.
type Generator struct {
	high uint64
	low  atomic.Uint64
}

func New() *Generator {
	g := &Generator{high: random()}
	for g.high < reservedPrefix {
		g.high = random()
	}
	g.low.Store(random())
	return g
}

// Generate returns the next identifier. It is safe for concurrent callers.
func (g *Generator) Generate() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], g.high)
	binary.BigEndian.PutUint64(buf[8:], g.low.Add(1))
	return hex.EncodeToString(buf[:])
}

// Derive returns the identifier named by name within space. The same inputs
// always give the same identifier, so entities without an identity of their
// own (folders, addressed by path) keep their id from one build to the next.
func Derive(space uuid.UUID, name string) string {
	buf := [16]byte(uuid.NewSHA1(space, []byte(name)))
	if binary.BigEndian.Uint64(buf[:8]) < reservedPrefix {
		buf[0] |= 0x80
	}
	return hex.EncodeToString(buf[:])
}

func random() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:]) // crypto/rand.Read never returns an error
	return binary.BigEndian.Uint64(buf[:])
}
