package nettables

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/exp/slices"
)

type TypeTag byte

const (
	TypeBoolean      TypeTag = 0x00
	TypeDouble       TypeTag = 0x01
	TypeString       TypeTag = 0x02
	TypeBooleanArray TypeTag = 0x10
	TypeDoubleArray  TypeTag = 0x11
	TypeStringArray  TypeTag = 0x12
)

func (self TypeTag) String() string {
	return fmt.Sprintf("0x%02x", byte(self))
}

// Codec encodes and decodes the values of one entry type
type Codec interface {
	Encode(w *WireWriter, value any) error
	Decode(r *WireReader) (any, error)
	// reports whether the Go value is a value of this type
	Accepts(value any) bool
}

type EntryType struct {
	Tag   TypeTag
	Name  string
	Codec Codec
}

func (self *EntryType) String() string {
	return fmt.Sprintf("%s(%s)", self.Name, self.Tag)
}

// TypeRegistry maps a type tag to its entry type.
// Each client and server is constructed with its own registry.
type TypeRegistry struct {
	stateLock sync.RWMutex
	types     map[TypeTag]*EntryType
	// registration order, used to infer the type of a Go value
	orderedTypes []*EntryType
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:        map[TypeTag]*EntryType{},
		orderedTypes: []*EntryType{},
	}
}

// a registry with the boolean, double, string and array types
func DefaultTypeRegistry() *TypeRegistry {
	registry := NewTypeRegistry()
	registry.Register(BooleanType)
	registry.Register(DoubleType)
	registry.Register(StringType)
	registry.Register(BooleanArrayType)
	registry.Register(DoubleArrayType)
	registry.Register(StringArrayType)
	return registry
}

// panics if the tag is already registered
func (self *TypeRegistry) Register(entryType *EntryType) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if existing, ok := self.types[entryType.Tag]; ok {
		panic(fmt.Errorf("Type tag %s already registered to %s.", entryType.Tag, existing.Name))
	}
	self.types[entryType.Tag] = entryType
	self.orderedTypes = append(self.orderedTypes, entryType)
}

func (self *TypeRegistry) Lookup(tag TypeTag) (*EntryType, error) {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	entryType, ok := self.types[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, tag)
	}
	return entryType, nil
}

func (self *TypeRegistry) TypeOf(value any) (*EntryType, error) {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	for _, entryType := range self.orderedTypes {
		if entryType.Codec.Accepts(value) {
			return entryType, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
}

var BooleanType = &EntryType{
	Tag:   TypeBoolean,
	Name:  "boolean",
	Codec: &scalarCodec[bool]{booleanElement},
}

var DoubleType = &EntryType{
	Tag:   TypeDouble,
	Name:  "double",
	Codec: &scalarCodec[float64]{doubleElement},
}

var StringType = &EntryType{
	Tag:   TypeString,
	Name:  "string",
	Codec: &scalarCodec[string]{stringElement},
}

var BooleanArrayType = &EntryType{
	Tag:   TypeBooleanArray,
	Name:  "boolean[]",
	Codec: &arrayCodec[bool]{booleanElement},
}

var DoubleArrayType = &EntryType{
	Tag:   TypeDoubleArray,
	Name:  "double[]",
	Codec: &arrayCodec[float64]{doubleElement},
}

var StringArrayType = &EntryType{
	Tag:   TypeStringArray,
	Name:  "string[]",
	Codec: &arrayCodec[string]{stringElement},
}

type elementCodec[T any] struct {
	put  func(w *WireWriter, v T) error
	read func(r *WireReader) (T, error)
}

var booleanElement = elementCodec[bool]{
	put: func(w *WireWriter, v bool) error {
		w.PutBoolean(v)
		return nil
	},
	read: func(r *WireReader) (bool, error) {
		return r.ReadBoolean()
	},
}

var doubleElement = elementCodec[float64]{
	put: func(w *WireWriter, v float64) error {
		w.PutFloat64(v)
		return nil
	},
	read: func(r *WireReader) (float64, error) {
		return r.ReadFloat64()
	},
}

var stringElement = elementCodec[string]{
	put: func(w *WireWriter, v string) error {
		return w.PutString(v)
	},
	read: func(r *WireReader) (string, error) {
		return r.ReadString()
	},
}

type scalarCodec[T any] struct {
	element elementCodec[T]
}

func (self *scalarCodec[T]) Encode(w *WireWriter, value any) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
	return self.element.put(w, v)
}

func (self *scalarCodec[T]) Decode(r *WireReader) (any, error) {
	return self.element.read(r)
}

func (self *scalarCodec[T]) Accepts(value any) bool {
	_, ok := value.(T)
	return ok
}

// 1-byte element count followed by the elements
type arrayCodec[T any] struct {
	element elementCodec[T]
}

func (self *arrayCodec[T]) Encode(w *WireWriter, value any) error {
	vs, ok := value.([]T)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
	if err := w.PutArrayLength(len(vs)); err != nil {
		return err
	}
	for _, v := range vs {
		if err := self.element.put(w, v); err != nil {
			return err
		}
	}
	return nil
}

func (self *arrayCodec[T]) Decode(r *WireReader) (any, error) {
	n, err := r.ReadArrayLength()
	if err != nil {
		return nil, err
	}
	vs := make([]T, n)
	for i := 0; i < n; i += 1 {
		if vs[i], err = self.element.read(r); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (self *arrayCodec[T]) Accepts(value any) bool {
	_, ok := value.([]T)
	return ok
}

func ValuesEqual(a any, b any) bool {
	switch v := a.(type) {
	case bool, float64, string:
		return a == b
	case []bool:
		w, ok := b.([]bool)
		return ok && slices.Equal(v, w)
	case []float64:
		w, ok := b.([]float64)
		return ok && slices.Equal(v, w)
	case []string:
		w, ok := b.([]string)
		return ok && slices.Equal(v, w)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// entries never share array storage with callers
func cloneValue(value any) any {
	switch v := value.(type) {
	case []bool:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []string:
		return slices.Clone(v)
	default:
		return value
	}
}
