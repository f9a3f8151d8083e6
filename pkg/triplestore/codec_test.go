package triplestore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		first []byte
		second []byte
	}{
		{"short", []byte("alice"), []byte("age")},
		{"equal-length", []byte("aa"), []byte("bb")},
		{"first-longer", []byte("subjectsubject"), []byte("p")},
		{"second-longer", []byte("s"), []byte("predicatepredicate")},
		{"single-byte", []byte{0x00}, []byte{0xFF}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Encode(tc.first, tc.second)
			require.NoError(t, err)

			gotFirst, gotSecond, err := Decode(buf)
			require.NoError(t, err)
			require.True(t, bytes.Equal(gotFirst, tc.first))
			require.True(t, bytes.Equal(gotSecond, tc.second))
		})
	}
}

func TestEncode_RejectsEmptyComponents(t *testing.T) {
	_, err := Encode(nil, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Encode([]byte("x"), nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecode_RejectsMalformedKey(t *testing.T) {
	_, _, err := Decode([]byte("tooshort"))
	require.ErrorIs(t, err, ErrMalformedKey)

	buf, err := Encode([]byte("a"), []byte("b"))
	require.NoError(t, err)
	corrupt := append(buf[:len(buf)-1:len(buf)-1], 0xFF)
	_, _, err = Decode(corrupt)
	require.ErrorIs(t, err, ErrMalformedKey)
}

// TestEncode_OrdersByFirstThenSecond verifies spec §4.1's "Codec order"
// testable property: for a fixed first component, encode sorts on second;
// distinct first components sort independently of second.
func TestEncode_OrdersByFirstThenSecond(t *testing.T) {
	a, err := Encode([]byte("alice"), []byte("age"))
	require.NoError(t, err)
	b, err := Encode([]byte("alice"), []byte("city"))
	require.NoError(t, err)
	require.True(t, bytes.Compare(a, b) < 0, "encode(A,age) should sort before encode(A,city)")

	c, err := Encode([]byte("alice"), []byte("zzzz"))
	require.NoError(t, err)
	d, err := Encode([]byte("bob"), []byte("aaaa"))
	require.NoError(t, err)
	require.True(t, bytes.Compare(c, d) < 0, "encode(alice,*) should sort before encode(bob,*)")
}

func TestEncode_DistinctPairsProduceDistinctBytes(t *testing.T) {
	seen := map[string]bool{}
	pairs := [][2]string{
		{"s", "p"}, {"sp", ""}, {"s", "pp"}, {"ss", "p"}, {"", "sp"},
	}
	for _, pr := range pairs {
		if pr[0] == "" || pr[1] == "" {
			continue
		}
		buf, err := Encode([]byte(pr[0]), []byte(pr[1]))
		require.NoError(t, err)
		require.False(t, seen[string(buf)], "collision for pair %v", pr)
		seen[string(buf)] = true
	}
}

func TestRangeBounds_ContainsOnlyMatchingFirst(t *testing.T) {
	lo, hi := RangeBounds([]byte("alice"))

	match, err := Encode([]byte("alice"), []byte("anything"))
	require.NoError(t, err)
	require.True(t, bytes.Compare(match, lo) >= 0)
	require.True(t, bytes.Compare(match, hi) < 0)

	// A key whose first component merely has "alice" as a byte-prefix
	// (e.g. "alicex") must fall outside [lo, hi) despite matching at the
	// raw-byte level, because RangeBounds is keyed on length via the
	// increment of the fixed-length prefix.
	longer, err := Encode([]byte("alicex"), []byte("anything"))
	require.NoError(t, err)
	inRange := bytes.Compare(longer, lo) >= 0 && bytes.Compare(longer, hi) < 0
	require.False(t, inRange)
}
