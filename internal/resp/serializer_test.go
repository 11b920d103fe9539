package resp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"simple string", OKValue(), "+OK\r\n"},
		{"error", ErrorValue("ERR bad"), "-ERR bad\r\n"},
		{"integer", IntegerValue(-7), ":-7\r\n"},
		{"bulk string", BulkStringValue("hello"), "$5\r\nhello\r\n"},
		{"empty bulk string", BulkStringValue(""), "$0\r\n\r\n"},
		{"null bulk string", NullBulkStringValue(), "$-1\r\n"},
		{"null array", Value{Type: Array, Null: true}, "*-1\r\n"},
		{"empty array", ArrayValue(), "*0\r\n"},
		{
			"array with mixed types",
			ArrayValue(IntegerValue(1), BulkStringValue("hello"), SimpleStringValue("OK")),
			"*3\r\n:1\r\n$5\r\nhello\r\n+OK\r\n",
		},
		{"bulk strings", BulkStringsValue("a=1", "b=2"), "*2\r\n$3\r\na=1\r\n$3\r\nb=2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			require.NoError(t, NewSerializer(buf).Serialize(tt.value))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestSerializeUnknownType(t *testing.T) {
	err := NewSerializer(new(bytes.Buffer)).Serialize(Value{Type: '?'})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n", string(Command("SET", "key", "value")))
}

func TestRoundTrip(t *testing.T) {
	values := []Value{
		SimpleStringValue("OK"),
		ErrorValue("ERR test"),
		IntegerValue(42),
		BulkStringValue("hello"),
		NullBulkStringValue(),
		BulkStringsValue("SET", "key", "value"),
		ArrayValue(IntegerValue(1), BulkStringValue("test"), ArrayValue(SimpleStringValue("nested"))),
	}

	for _, original := range values {
		buf := new(bytes.Buffer)
		require.NoError(t, NewSerializer(buf).Serialize(original))

		parsed, err := NewParser(strings.NewReader(buf.String())).Parse()
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	}
}
