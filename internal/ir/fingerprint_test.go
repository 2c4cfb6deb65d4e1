package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOrderIndependent(t *testing.T) {
	a := Attributes{{Key: "Business", Value: "X"}, {Key: "SLA", Value: "Gold"}}
	b := Attributes{{Key: "SLA", Value: "Gold"}, {Key: "Business", Value: "X"}}

	assert.Equal(t, FingerprintOf(a), FingerprintOf(b))
}

func TestFingerprintIgnoresWhitespaceAndBOM(t *testing.T) {
	a := Attributes{{Key: "Business", Value: "X"}}
	b := Attributes{{Key: "\ufeffBusiness", Value: " X "}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	x := Attributes{{Key: "Business", Value: "X"}}
	y := Attributes{{Key: "Business", Value: "Y"}}

	assert.NotEqual(t, x.Fingerprint(), y.Fingerprint())
}

func TestFingerprintEmptyValueIsSignificant(t *testing.T) {
	withEmpty := Attributes{{Key: "Business", Value: "X"}, {Key: "SLA", Value: ""}}
	without := Attributes{{Key: "Business", Value: "X"}}

	assert.NotEqual(t, withEmpty.Fingerprint(), without.Fingerprint())
}

func TestFingerprintExcludesAssetID(t *testing.T) {
	attrs := Attributes{{Key: "Business", Value: "X"}}
	a := AssetRecord{AssetID: "101", Attributes: attrs}
	b := AssetRecord{AssetID: "202", Attributes: attrs}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintUsableAsMapKey(t *testing.T) {
	seen := map[Fingerprint]int{}
	seen[FingerprintOf(Attributes{{Key: "a", Value: "1"}})]++
	seen[FingerprintOf(Attributes{{Key: "a", Value: "1"}})]++
	seen[FingerprintOf(Attributes{{Key: "a", Value: "2"}})]++

	assert.Len(t, seen, 2)
}

func TestFingerprintStringRoundTrip(t *testing.T) {
	fp := FingerprintOf(Attributes{{Key: "Business", Value: "X"}})

	s := fp.String()
	assert.Len(t, s, 32)

	parsed, err := ParseFingerprint(s)
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
	assert.False(t, parsed.IsZero())
}

func TestFingerprintStringLayout(t *testing.T) {
	fp := Fingerprint{Hi: 1, Lo: 0xff}
	assert.Equal(t, "000000000000000100000000000000ff", fp.String())
}

func TestParseFingerprintErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zz"},
		{"too short", "00ff"},
		{"too long", "000000000000000100000000000000ff00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFingerprint(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse fingerprint")
		})
	}
}

func TestFingerprintTextMarshaling(t *testing.T) {
	fp := FingerprintOf(Attributes{{Key: "k", Value: "v"}})

	text, err := fp.MarshalText()
	require.NoError(t, err)

	var got Fingerprint
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, fp, got)
}

func TestPayloadDigest(t *testing.T) {
	a := PayloadDigest([]byte(`{"x":1}`))
	b := PayloadDigest([]byte(`{"x":1}`))
	c := PayloadDigest([]byte(`{"x":2}`))

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t, hashWithDomain("a", data), hashWithDomain("b", data))
	// The separator keeps domain/data boundaries unambiguous.
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}
