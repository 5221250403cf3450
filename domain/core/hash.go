package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// HashBuilder accumulates strings and floats into a single digest.
type HashBuilder struct {
	buf []byte
}

// String appends a length-prefixed string
func (b *HashBuilder) String(s string) *HashBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// Float appends the bit pattern of a float64
func (b *HashBuilder) Float(v float64) *HashBuilder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

// Int appends an int64
func (b *HashBuilder) Int(v int64) *HashBuilder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
	return b
}

// Sum returns the digest of everything appended so far
func (b *HashBuilder) Sum() Hash {
	return NewHash(b.buf)
}
