package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainPayload = "attrsync/payload/v1"
)

// Fingerprint is the 128-bit equality key of an attribute set.
// It is a comparable value type and can be used directly as a map key.
type Fingerprint struct {
	Hi uint64
	Lo uint64
}

// FingerprintOf hashes the canonical form of attrs with XXH3-128.
// Two attribute sets get the same fingerprint iff they map the same cleaned
// keys to the same cleaned values, regardless of order.
func FingerprintOf(attrs Attributes) Fingerprint {
	sum := xxh3.Hash128(MarshalCanonical(attrs))
	return Fingerprint{Hi: sum.Hi, Lo: sum.Lo}
}

// String returns the fingerprint as 32 lowercase hex digits.
func (f Fingerprint) String() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], f.Hi)
	binary.BigEndian.PutUint64(b[8:], f.Lo)
	return hex.EncodeToString(b[:])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint parses the String form.
func ParseFingerprint(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint %q: %w", s, err)
	}
	if len(b) != 16 {
		return Fingerprint{}, fmt.Errorf("parse fingerprint %q: want 16 bytes, got %d", s, len(b))
	}
	return Fingerprint{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadDigest returns the audit digest stored next to a rendered payload.
func PayloadDigest(body []byte) string {
	return hashWithDomain(DomainPayload, body)
}
