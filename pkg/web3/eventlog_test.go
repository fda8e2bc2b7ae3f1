package web3

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventLog(t *testing.T) {
	l, err := DecodeEventLog([]byte(transferLogJSON))
	require.NoError(t, err)

	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", l.Address.Hex())
	assert.Equal(t, int64(0x6c), l.LogIndex.Int64())
	assert.False(t, l.Removed)
	require.Len(t, l.Topics, 3)
	assert.Len(t, l.Topics[0], 32)
	assert.Equal(t, "0x000000000000000000000000000000000000000000000000000000003b9aca00", EncodeEventLog(l)["data"])
}

func TestEventLogRemoved(t *testing.T) {
	tests := []struct {
		name    string
		removed interface{}
		want    bool
	}{
		{"absent", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"number one", 1, true},
		{"number zero", 0, false},
		{"number two", 2, false},
		{"hex one", "0x1", true},
		{"hex zero", "0x0", false},
		{"decimal one", json.RawMessage("1.0"), true},
		{"exponent one", json.RawMessage("1e0"), true},
		{"exponent ten", json.RawMessage("0.1e2"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := withFields(t, transferLogJSON, map[string]interface{}{"removed": tt.removed})

			l, err := DecodeEventLog([]byte(data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.Removed)

			raw, err := DecodeEventLogFromMap(asMap(t, data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.Removed)
		})
	}

	_, err := DecodeEventLog([]byte(withFields(t, transferLogJSON, map[string]interface{}{"removed": []interface{}{}})))
	require.ErrorIs(t, err, ErrMissingOrMismatchedField)

	for _, lit := range []string{"-1", "1.5", "2e-1"} {
		data := withFields(t, transferLogJSON, map[string]interface{}{"removed": json.RawMessage(lit)})

		_, err := DecodeEventLog([]byte(data))
		require.ErrorIs(t, err, ErrMissingOrMismatchedField, lit)

		_, err = DecodeEventLogFromMap(asMap(t, data))
		require.ErrorIs(t, err, ErrMissingOrMismatchedField, lit)
	}
}

func TestEventLogFailures(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
		field  string
		target error
	}{
		{"malformed topic", map[string]interface{}{"topics": []interface{}{"0xddf2", "0xqq"}}, "topics[1]", ErrInvalidEncoding},
		{"numeric topic", map[string]interface{}{"topics": []interface{}{7}}, "topics[0]", ErrMissingOrMismatchedField},
		{"topics not a list", map[string]interface{}{"topics": "0xddf2"}, "topics", ErrMissingOrMismatchedField},
		{"missing topics", map[string]interface{}{"topics": nil}, "topics", ErrMissingOrMismatchedField},
		{"short address", map[string]interface{}{"address": "0xa0b8"}, "address", ErrInvalidEncoding},
		{"missing data", map[string]interface{}{"data": nil}, "data", ErrMissingOrMismatchedField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := withFields(t, transferLogJSON, tt.fields)
			for _, decode := range []func() (*EventLog, error){
				func() (*EventLog, error) { return DecodeEventLog([]byte(data)) },
				func() (*EventLog, error) { return DecodeEventLogFromMap(asMap(t, data)) },
			} {
				_, err := decode()
				require.ErrorIs(t, err, tt.target)
				var fe *FieldError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, "log", fe.Entity)
				assert.Equal(t, tt.field, fe.Field)
			}
		})
	}
}

func TestEventLogEmptyTopics(t *testing.T) {
	l, err := DecodeEventLog([]byte(withFields(t, transferLogJSON, map[string]interface{}{"topics": []interface{}{}})))
	require.NoError(t, err)
	assert.Empty(t, l.Topics)
	assert.Equal(t, []interface{}{}, EncodeEventLog(l)["topics"])
}

func TestEventLogJSON(t *testing.T) {
	var l EventLog
	require.NoError(t, json.Unmarshal([]byte(transferLogJSON), &l))

	out, err := json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, transferLogJSON, string(out))

	raw, err := DecodeEventLogFromMap(asMap(t, transferLogJSON))
	require.NoError(t, err)
	assert.Equal(t, EncodeEventLog(&l), EncodeEventLog(raw))
}
