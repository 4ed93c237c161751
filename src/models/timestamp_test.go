package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------

func TestTimestampDecodeMilliseconds(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte("1700000000000"), &ts))
	assert.Equal(t, MTimestampMs(1700000000000), ts)
}

func TestTimestampDecodeSeconds(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte("1700000000"), &ts))
	assert.Equal(t, MTimestampMs(1700000000000), ts)
}

func TestTimestampDecodeRFC3339(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte(`"2023-11-14T22:13:20Z"`), &ts))

	expected := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()
	assert.Equal(t, MTimestampMs(expected), ts)
}

func TestTimestampDecodeBareDateTime(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte(`"2023-11-14T22:13:20"`), &ts))

	expected := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()
	assert.Equal(t, MTimestampMs(expected), ts)
}

func TestTimestampDecodeNumericString(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte(`"1700000000"`), &ts))
	assert.Equal(t, MTimestampMs(1700000000000), ts)
}

func TestTimestampDecodeNullAndEmpty(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.NoError(t, json.Unmarshal([]byte("null"), &ts))
	assert.Equal(t, MTimestampMs(0), ts)

	assert.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.Equal(t, MTimestampMs(0), ts)
}

func TestTimestampDecodeGarbage(t *testing.T) {
	t.Parallel()

	var ts MTimestampMs
	assert.Error(t, json.Unmarshal([]byte(`"not a time"`), &ts))
}

// -----------------------------------------------------------------------------

func TestFlagDecodeVariants(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"true":    true,
		"1":       true,
		`"1"`:     true,
		"false":   false,
		"0":       false,
		`"0"`:     false,
		"null":    false,
	}

	for input, expected := range cases {
		var f MFlag
		assert.NoError(t, json.Unmarshal([]byte(input), &f), "input %s", input)
		assert.Equal(t, MFlag(expected), f, "input %s", input)
	}

	var f MFlag
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &f))
}

func TestFlagMarshalsToDigit(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(MFlag(true))
	assert.NoError(t, err)
	assert.Equal(t, "1", string(out))

	out, err = json.Marshal(MFlag(false))
	assert.NoError(t, err)
	assert.Equal(t, "0", string(out))
}

// -----------------------------------------------------------------------------

func TestTransactionNormalize(t *testing.T) {
	t.Parallel()

	tx := MTransaction{CreatedAt: 5000}
	tx.Normalize()
	assert.Equal(t, MTimestampMs(5000), tx.CreatedTimestamp)

	tx = MTransaction{CreatedAt: 5000, CreatedTimestamp: 6000}
	tx.Normalize()
	assert.Equal(t, MTimestampMs(6000), tx.CreatedTimestamp)
}
