package nettables

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"unicode/utf8"
)

// all multi-byte wire fields are big-endian

const MaxStringByteCount = math.MaxUint16
const MaxArrayLength = math.MaxUint8

// WireWriter accumulates one encoded message.
// A message is assembled completely before any byte reaches the stream,
// so an encode error never leaves a partial message on the wire.
type WireWriter struct {
	buffer  bytes.Buffer
	scratch [8]byte
}

func NewWireWriter() *WireWriter {
	return &WireWriter{}
}

func (self *WireWriter) PutUint8(b byte) {
	self.buffer.WriteByte(b)
}

func (self *WireWriter) PutUint16(v uint16) {
	binary.BigEndian.PutUint16(self.scratch[0:2], v)
	self.buffer.Write(self.scratch[0:2])
}

func (self *WireWriter) PutBoolean(v bool) {
	if v {
		self.PutUint8(1)
	} else {
		self.PutUint8(0)
	}
}

func (self *WireWriter) PutFloat64(v float64) {
	binary.BigEndian.PutUint64(self.scratch[0:8], math.Float64bits(v))
	self.buffer.Write(self.scratch[0:8])
}

func (self *WireWriter) PutString(v string) error {
	if MaxStringByteCount < len(v) {
		return ErrValueTooLarge
	}
	self.PutUint16(uint16(len(v)))
	self.buffer.WriteString(v)
	return nil
}

func (self *WireWriter) PutArrayLength(n int) error {
	if MaxArrayLength < n {
		return ErrValueTooLarge
	}
	self.PutUint8(byte(n))
	return nil
}

func (self *WireWriter) Bytes() []byte {
	return self.buffer.Bytes()
}

func (self *WireWriter) Len() int {
	return self.buffer.Len()
}

func (self *WireWriter) Reset() {
	self.buffer.Reset()
}

// WireReader decodes fields from a stream.
// Running out of bytes inside a field is a bad message (truncated stream),
// any other read failure is an io failure.
type WireReader struct {
	r       io.Reader
	scratch [8]byte
}

func NewWireReader(r io.Reader) *WireReader {
	return &WireReader{
		r: r,
	}
}

func (self *WireReader) readFull(b []byte) error {
	if _, err := io.ReadFull(self.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return badMessage("truncated stream")
		}
		return ioFailure(err)
	}
	return nil
}

func (self *WireReader) ReadUint8() (byte, error) {
	if err := self.readFull(self.scratch[0:1]); err != nil {
		return 0, err
	}
	return self.scratch[0], nil
}

func (self *WireReader) ReadUint16() (uint16, error) {
	if err := self.readFull(self.scratch[0:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(self.scratch[0:2]), nil
}

func (self *WireReader) ReadBoolean() (bool, error) {
	b, err := self.ReadUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (self *WireReader) ReadFloat64() (float64, error) {
	if err := self.readFull(self.scratch[0:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(self.scratch[0:8])), nil
}

func (self *WireReader) ReadString() (string, error) {
	n, err := self.ReadUint16()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := self.readFull(b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", badMessage("string is not utf-8")
	}
	return string(b), nil
}

func (self *WireReader) ReadArrayLength() (int, error) {
	n, err := self.ReadUint8()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
