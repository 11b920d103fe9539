package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type Type byte

const (
	SimpleString Type = '+'
	Error        Type = '-'
	Integer      Type = ':'
	BulkString   Type = '$'
	Array        Type = '*'
)

var (
	ErrInvalidType   = errors.New("invalid RESP type")
	ErrInvalidFormat = errors.New("invalid RESP format")
	ErrIncomplete    = errors.New("incomplete RESP value")
)

const (
	MaxBulkLength  = 512 << 20
	MaxArrayLength = 1 << 20
)

type Value struct {
	Type  Type
	Str   string
	Int   int64
	Array []Value
	Null  bool
}

// Reader is satisfied by *bufio.Reader and *bytes.Buffer. Readers that also
// report Len, such as *bytes.Buffer, let the parser detect an incomplete
// frame from its header alone.
type Reader interface {
	io.Reader
	io.ByteReader
	ReadString(delim byte) (string, error)
}

type Parser struct {
	reader Reader
}

func NewParser(r io.Reader) *Parser {
	if rd, ok := r.(Reader); ok {
		return &Parser{reader: rd}
	}
	return &Parser{
		reader: bufio.NewReader(r),
	}
}

func (p *Parser) Parse() (Value, error) {
	typeByte, err := p.reader.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch Type(typeByte) {
	case SimpleString:
		return p.parseSimpleString()
	case Error:
		return p.parseError()
	case Integer:
		return p.parseInteger()
	case BulkString:
		return p.parseBulkString()
	case Array:
		return p.parseArray()
	default:
		return Value{}, fmt.Errorf("%w: %c", ErrInvalidType, typeByte)
	}
}

// ParseCommand reads one array of bulk strings and returns its elements.
// A frame cut short by the end of input yields ErrIncomplete.
func (p *Parser) ParseCommand() ([]string, error) {
	value, err := p.Parse()
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrIncomplete
		}
		return nil, err
	}

	if value.Type != Array || value.Null {
		return nil, fmt.Errorf("%w: expected array", ErrInvalidFormat)
	}

	args := make([]string, len(value.Array))
	for i, elem := range value.Array {
		if elem.Type != BulkString || elem.Null {
			return nil, fmt.Errorf("%w: command arguments must be bulk strings", ErrInvalidFormat)
		}
		args[i] = elem.Str
	}
	return args, nil
}

func (p *Parser) parseSimpleString() (Value, error) {
	line, err := p.readLine()
	if err != nil {
		return Value{}, err
	}
	return Value{Type: SimpleString, Str: line}, nil
}

func (p *Parser) parseError() (Value, error) {
	line, err := p.readLine()
	if err != nil {
		return Value{}, err
	}
	return Value{Type: Error, Str: line}, nil
}

func (p *Parser) parseInteger() (Value, error) {
	line, err := p.readLine()
	if err != nil {
		return Value{}, err
	}

	num, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid integer", ErrInvalidFormat)
	}

	return Value{Type: Integer, Int: num}, nil
}

func (p *Parser) parseBulkString() (Value, error) {
	line, err := p.readLine()
	if err != nil {
		return Value{}, err
	}

	length, err := strconv.Atoi(line)
	if err != nil || length < -1 || length > MaxBulkLength {
		return Value{}, fmt.Errorf("%w: invalid bulk string length", ErrInvalidFormat)
	}

	if length == -1 {
		return Value{Type: BulkString, Null: true}, nil
	}

	if p.short(length + 2) {
		return Value{}, io.ErrUnexpectedEOF
	}

	// the payload buffer grows with the bytes actually read, never with the
	// declared length
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, p.reader, int64(length)+2); err != nil {
		return Value{}, unexpected(err)
	}
	data := buf.Bytes()
	if data[length] != '\r' || data[length+1] != '\n' {
		return Value{}, fmt.Errorf("%w: missing CRLF after bulk string", ErrInvalidFormat)
	}

	return Value{Type: BulkString, Str: string(data[:length])}, nil
}

func (p *Parser) parseArray() (Value, error) {
	line, err := p.readLine()
	if err != nil {
		return Value{}, err
	}

	count, err := strconv.Atoi(line)
	if err != nil || count < -1 || count > MaxArrayLength {
		return Value{}, fmt.Errorf("%w: invalid array length", ErrInvalidFormat)
	}

	if count == -1 {
		return Value{Type: Array, Null: true}, nil
	}

	// every element takes at least 3 bytes ("+\r\n")
	if p.short(3 * count) {
		return Value{}, io.ErrUnexpectedEOF
	}

	array := make([]Value, 0, min(count, 16))
	for i := 0; i < count; i++ {
		val, err := p.Parse()
		if err != nil {
			return Value{}, unexpected(err)
		}
		array = append(array, val)
	}

	return Value{Type: Array, Array: array}, nil
}

func (p *Parser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", unexpected(err)
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("%w: missing CRLF", ErrInvalidFormat)
	}

	return line[:len(line)-2], nil
}

// short reports whether the reader is an in-memory buffer holding fewer than
// n unread bytes. Streaming readers always report false.
func (p *Parser) short(n int) bool {
	sized, ok := p.reader.(interface{ Len() int })
	return ok && sized.Len() < n
}

// unexpected turns an EOF reached inside a value into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
