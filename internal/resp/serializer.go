package resp

import (
	"fmt"
	"io"
	"strconv"
)

type Serializer struct {
	writer io.Writer
}

func NewSerializer(w io.Writer) *Serializer {
	return &Serializer{writer: w}
}

func (s *Serializer) Serialize(v Value) error {
	switch v.Type {
	case SimpleString:
		return s.writeLine('+', v.Str)
	case Error:
		return s.writeLine('-', v.Str)
	case Integer:
		return s.writeLine(':', strconv.FormatInt(v.Int, 10))
	case BulkString:
		return s.writeBulkString(v.Str, v.Null)
	case Array:
		return s.writeArray(v.Array, v.Null)
	default:
		return fmt.Errorf("%w: %c", ErrInvalidType, v.Type)
	}
}

func (s *Serializer) writeLine(prefix byte, str string) error {
	_, err := io.WriteString(s.writer, string(prefix)+str+"\r\n")
	return err
}

func (s *Serializer) writeBulkString(str string, null bool) error {
	if null {
		_, err := io.WriteString(s.writer, "$-1\r\n")
		return err
	}

	_, err := fmt.Fprintf(s.writer, "$%d\r\n%s\r\n", len(str), str)
	return err
}

func (s *Serializer) writeArray(array []Value, null bool) error {
	if null {
		_, err := io.WriteString(s.writer, "*-1\r\n")
		return err
	}

	if _, err := fmt.Fprintf(s.writer, "*%d\r\n", len(array)); err != nil {
		return err
	}

	for _, elem := range array {
		if err := s.Serialize(elem); err != nil {
			return err
		}
	}

	return nil
}

func SimpleStringValue(str string) Value {
	return Value{Type: SimpleString, Str: str}
}

func ErrorValue(str string) Value {
	return Value{Type: Error, Str: str}
}

func IntegerValue(num int64) Value {
	return Value{Type: Integer, Int: num}
}

func BulkStringValue(str string) Value {
	return Value{Type: BulkString, Str: str}
}

func NullBulkStringValue() Value {
	return Value{Type: BulkString, Null: true}
}

func ArrayValue(values ...Value) Value {
	return Value{Type: Array, Array: values}
}

// BulkStringsValue wraps each string as a bulk string inside an array.
func BulkStringsValue(strs ...string) Value {
	values := make([]Value, len(strs))
	for i, str := range strs {
		values[i] = BulkStringValue(str)
	}
	return ArrayValue(values...)
}

func OKValue() Value {
	return SimpleStringValue("OK")
}

func PongValue() Value {
	return SimpleStringValue("PONG")
}

// Command encodes args as a RESP array of bulk strings, the form clients
// use to send commands.
func Command(args ...string) []byte {
	buf := make([]byte, 0, 16*len(args))
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, '\r', '\n')
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, arg...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}
