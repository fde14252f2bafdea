// Package ident generates collision-resistant, lexicographically sortable
// identifiers for previews, changes, history rows and queued tasks.
package ident

import (
	crypto_rand "crypto/rand"
	"strings"
	"time"
)

// Base62 alphabet: 0-9, A-Z, a-z (62 characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const randomLength = 18

// New returns a new identifier: a 6-character base62-encoded Unix timestamp
// followed by 18 random base62 characters. The timestamp prefix keeps ids
// sortable by creation time.
func New() string {
	return encodeTimestamp(time.Now().Unix()) + randomBase62(randomLength)
}

// encodeTimestamp encodes a Unix timestamp (seconds) as a 6-character base62
// string. Range: 0 to ~56 billion seconds.
func encodeTimestamp(seconds int64) string {
	n := seconds
	result := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n = n / 62
	}
	return string(result)
}

// randomBase62 produces length uniformly distributed base62 characters using
// 6-bit extraction with rejection sampling (values 62 and 63 are discarded).
func randomBase62(length int) string {
	// Extra bytes cover the ~3% rejection rate
	bytesNeeded := (length*6)/8 + 4
	buf := make([]byte, bytesNeeded)

	var result strings.Builder
	result.Grow(length)

	bitBuffer := uint64(0)
	bitsInBuffer := uint(0)
	byteIndex := len(buf)

	for result.Len() < length {
		if byteIndex >= len(buf) {
			if _, err := crypto_rand.Read(buf); err != nil {
				panic("ident: failed to read random bytes: " + err.Error())
			}
			byteIndex = 0
		}

		for bitsInBuffer < 6 && byteIndex < len(buf) {
			bitBuffer = (bitBuffer << 8) | uint64(buf[byteIndex])
			bitsInBuffer += 8
			byteIndex++
		}
		if bitsInBuffer < 6 {
			continue
		}

		value := (bitBuffer >> (bitsInBuffer - 6)) & 0x3f
		bitsInBuffer -= 6

		if value < 62 {
			result.WriteByte(base62Alphabet[value])
		}
	}

	return result.String()
}
