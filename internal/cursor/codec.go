// Package cursor implements the URL-safe base62 codec used to serialize
// pagination cursors, and the (broadcaster_id, year_month, timestamp_ms,
// message_id) tuple built on top of it.
//
// Encoding treats the whole key string as one big-endian base-256 integer
// and converts it to/from base62 as a single number, the standard,
// invertible way to build a base62 codec. See DESIGN.md for why a
// per-character digit-group scheme was rejected.
package cursor

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var digitValue [256]int8

func init() {
	for i := range digitValue {
		digitValue[i] = -1
	}
	for i, r := range alphabet {
		digitValue[byte(r)] = int8(i)
	}
}

var base62 = big.NewInt(int64(len(alphabet)))

// Encode base62-encodes s, treating its bytes as the big-endian digits of
// one base-256 integer.
func Encode(s string) string {
	if s == "" {
		return ""
	}

	n := new(big.Int).SetBytes([]byte(s))
	if n.Sign() == 0 {
		return string(alphabet[0])
	}

	var digits []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base62, mod)
		digits = append(digits, alphabet[mod.Int64()])
	}
	// digits were produced least-significant first; reverse for MSB-first.
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// Decode inverts Encode.
func Decode(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	n := new(big.Int)
	for i := 0; i < len(encoded); i++ {
		d := digitValue[encoded[i]]
		if d < 0 {
			return "", fmt.Errorf("cursor: invalid base62 character %q", encoded[i])
		}
		n.Mul(n, base62)
		n.Add(n, big.NewInt(int64(d)))
	}
	return string(n.Bytes()), nil
}

// Key is the decoded (broadcaster_id, year_month, timestamp_ms, message_id)
// tuple that makes up a chat row's primary key.
type Key struct {
	BroadcasterID int64
	YearMonth     int
	TimestampMs   int64
	MessageID     uuid.UUID
}

// EncodeKey joins the primary-key elements with single spaces and base62
// encodes the result, producing an opaque, URL-safe pagination cursor.
func EncodeKey(k Key) string {
	raw := fmt.Sprintf("%d %d %d %s", k.BroadcasterID, k.YearMonth, k.TimestampMs, k.MessageID.String())
	return Encode(raw)
}

// DecodeKey decodes a cursor produced by EncodeKey and validates that it
// has exactly four well-formed fields (broadcaster id, year-month,
// timestamp, message id). It does not check that YearMonth agrees with
// TimestampMs — callers must check that separately, since the query API
// also needs to cross-check the cursor's broadcaster id against the
// request path.
func DecodeKey(encoded string) (Key, error) {
	raw, err := Decode(encoded)
	if err != nil {
		return Key{}, err
	}

	fields := strings.Fields(raw)
	if len(fields) != 4 {
		return Key{}, fmt.Errorf("cursor: expected 4 fields, got %d", len(fields))
	}

	broadcasterID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("cursor: invalid broadcaster_id: %w", err)
	}
	yearMonth, err := strconv.Atoi(fields[1])
	if err != nil {
		return Key{}, fmt.Errorf("cursor: invalid year_month: %w", err)
	}
	timestampMs, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("cursor: invalid timestamp: %w", err)
	}
	messageID, err := uuid.Parse(fields[3])
	if err != nil {
		return Key{}, fmt.Errorf("cursor: invalid message_id: %w", err)
	}

	return Key{
		BroadcasterID: broadcasterID,
		YearMonth:     yearMonth,
		TimestampMs:   timestampMs,
		MessageID:     messageID,
	}, nil
}
