package nettables

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFieldUpdateBytes(t *testing.T) {
	w := NewWireWriter()
	err := FieldUpdateMessage(Entry{
		Id:             16,
		SequenceNumber: 0,
		Type:           BooleanType,
		Value:          true,
	}).Encode(w)
	assert.Equal(t, err, nil)
	assert.Equal(t, w.Bytes(), []byte{0x11, 0x00, 0x10, 0x00, 0x00, 0x01})

	w.Reset()
	err = FieldUpdateMessage(Entry{
		Id:             16,
		SequenceNumber: 0,
		Type:           DoubleType,
		Value:          12.5,
	}).Encode(w)
	assert.Equal(t, err, nil)
	assert.Equal(t, w.Bytes(), []byte{
		0x11, 0x00, 0x10, 0x00, 0x00,
		0x40, 0x29, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	})
}

func TestEntryAssignmentBytes(t *testing.T) {
	w := NewWireWriter()
	err := EntryAssignmentMessage(Entry{
		Id:             UnknownEntryId,
		Name:           "/a",
		SequenceNumber: 3,
		Type:           StringType,
		Value:          "VaLuE",
	}).Encode(w)
	assert.Equal(t, err, nil)
	assert.Equal(t, w.Bytes(), []byte{
		0x10,
		0x00, 0x02, '/', 'a',
		0x02,
		0xFF, 0xFF,
		0x00, 0x03,
		0x00, 0x05, 'V', 'a', 'L', 'u', 'E',
	})
}

func TestHelloBytes(t *testing.T) {
	w := NewWireWriter()
	assert.Equal(t, ClientHelloMessage(ProtocolRevision).Encode(w), nil)
	assert.Equal(t, w.Bytes(), []byte{0x01, 0x02, 0x00})

	w.Reset()
	assert.Equal(t, ProtocolVersionUnsupportedMessage(ProtocolRevision).Encode(w), nil)
	assert.Equal(t, w.Bytes(), []byte{0x02, 0x02, 0x00})

	w.Reset()
	assert.Equal(t, ServerHelloCompleteMessage().Encode(w), nil)
	assert.Equal(t, KeepAliveMessage().Encode(w), nil)
	assert.Equal(t, w.Bytes(), []byte{0x03, 0x00})
}

func TestValueBytes(t *testing.T) {
	w := NewWireWriter()
	assert.Equal(t, StringType.Codec.Encode(w, "VaLuE"), nil)
	assert.Equal(t, w.Bytes(), []byte{0x00, 0x05, 'V', 'a', 'L', 'u', 'E'})

	w.Reset()
	assert.Equal(t, BooleanArrayType.Codec.Encode(w, []bool{true, false, true, true}), nil)
	assert.Equal(t, w.Bytes(), []byte{0x04, 0x01, 0x00, 0x01, 0x01})

	w.Reset()
	assert.Equal(t, StringArrayType.Codec.Encode(w, []string{"a", ""}), nil)
	assert.Equal(t, w.Bytes(), []byte{0x02, 0x00, 0x01, 'a', 0x00, 0x00})
}

func TestValueRoundTrip(t *testing.T) {
	values := []struct {
		entryType *EntryType
		value     any
	}{
		{BooleanType, true},
		{BooleanType, false},
		{DoubleType, 12.5},
		{DoubleType, -0.0001},
		{StringType, ""},
		{StringType, "VaLuE"},
		{StringType, "héllo wörld 世界 🤖"},
		{BooleanArrayType, []bool{}},
		{BooleanArrayType, []bool{true, false, true, true}},
		{DoubleArrayType, []float64{1, 2.5, -3}},
		{StringArrayType, []string{"", "a", "世界"}},
	}

	for _, v := range values {
		w := NewWireWriter()
		err := v.entryType.Codec.Encode(w, v.value)
		assert.Equal(t, err, nil)

		r := NewWireReader(bytes.NewReader(w.Bytes()))
		value, err := v.entryType.Codec.Decode(r)
		assert.Equal(t, err, nil)
		assert.Equal(t, ValuesEqual(value, v.value), true)

		// the whole encoding was consumed
		_, err = r.ReadUint8()
		assert.Equal(t, errors.Is(err, ErrBadMessage), true)
	}
}

func TestValueTooLarge(t *testing.T) {
	w := NewWireWriter()

	err := StringType.Codec.Encode(w, strings.Repeat("a", MaxStringByteCount+1))
	assert.Equal(t, errors.Is(err, ErrValueTooLarge), true)

	w.Reset()
	err = StringType.Codec.Encode(w, strings.Repeat("a", MaxStringByteCount))
	assert.Equal(t, err, nil)
	assert.Equal(t, w.Len(), 2+MaxStringByteCount)

	w.Reset()
	err = DoubleArrayType.Codec.Encode(w, make([]float64, MaxArrayLength+1))
	assert.Equal(t, errors.Is(err, ErrValueTooLarge), true)

	w.Reset()
	err = DoubleArrayType.Codec.Encode(w, make([]float64, MaxArrayLength))
	assert.Equal(t, err, nil)
	assert.Equal(t, w.Len(), 1+8*MaxArrayLength)
}

func TestWireReaderBadInput(t *testing.T) {
	// truncated string
	r := NewWireReader(bytes.NewReader([]byte{0x00, 0x05, 'V', 'a'}))
	_, err := r.ReadString()
	assert.Equal(t, errors.Is(err, ErrBadMessage), true)

	// invalid utf-8
	r = NewWireReader(bytes.NewReader([]byte{0x00, 0x02, 0xC3, 0x28}))
	_, err = r.ReadString()
	assert.Equal(t, errors.Is(err, ErrBadMessage), true)

	// truncated double
	r = NewWireReader(bytes.NewReader([]byte{0x40, 0x29}))
	_, err = r.ReadFloat64()
	assert.Equal(t, errors.Is(err, ErrBadMessage), true)

	// any nonzero byte is true
	r = NewWireReader(bytes.NewReader([]byte{0x02}))
	v, err := r.ReadBoolean()
	assert.Equal(t, err, nil)
	assert.Equal(t, v, true)
}
