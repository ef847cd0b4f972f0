package cursor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello world",
		"42 202401 1704067200000 33569d6a-8a67-4e48-aa55-b11bf86e2268",
		"0 0 0 00000000-0000-0000-0000-000000000000",
	}
	for _, s := range cases {
		enc := Encode(s)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}

func TestEncodeDecodeKey_RoundTrip(t *testing.T) {
	mid := uuid.MustParse("33569d6a-8a67-4e48-aa55-b11bf86e2268")
	k := Key{BroadcasterID: 42, YearMonth: 202401, TimestampMs: 1704067200000, MessageID: mid}

	enc := EncodeKey(k)
	got, err := DecodeKey(enc)
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestEncodeKey_MutatedKeyDiffers(t *testing.T) {
	mid := uuid.MustParse("33569d6a-8a67-4e48-aa55-b11bf86e2268")
	k1 := Key{BroadcasterID: 42, YearMonth: 202401, TimestampMs: 1704067200000, MessageID: mid}
	k2 := k1
	k2.YearMonth = 202402

	assert.NotEqual(t, EncodeKey(k1), EncodeKey(k2))
}

func TestDecodeKey_RejectsCorruptFields(t *testing.T) {
	enc := Encode("not four fields")
	_, err := DecodeKey(enc)
	assert.Error(t, err)
}

func TestDecode_RejectsInvalidCharacter(t *testing.T) {
	_, err := Decode("not-valid-base62!")
	assert.Error(t, err)
}
