package nettables

import (
	"github.com/oklog/ulid/v2"
)

// identifies one connection for the lifetime of the process
// ulids are ordered by create time, so later connections sort after earlier ones
// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) LessThan(b Id) bool {
	return ulid.ULID(self).Compare(ulid.ULID(b)) < 0
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}
