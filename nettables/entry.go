package nettables

import (
	"fmt"
)

// wire address of an entry, valid for one server session
type EntryId uint16

// the id of an entry the server has not assigned yet
const UnknownEntryId EntryId = 0xFFFF

// SequenceNumber is the per-entry version.
// Comparison is circular (mod 2^16) so the counter may wrap.
type SequenceNumber uint16

// `self` is newer than `b` when the signed 16-bit difference is positive
func (self SequenceNumber) IsNewerThan(b SequenceNumber) bool {
	return 0 < int16(self-b)
}

func (self SequenceNumber) Next() SequenceNumber {
	return self + 1
}

// Entry is a snapshot of one named value cell.
// Stores hand out copies, never their own entries.
type Entry struct {
	Id             EntryId
	Name           string
	SequenceNumber SequenceNumber
	Type           *EntryType
	Value          any
}

func (self Entry) HasId() bool {
	return self.Id != UnknownEntryId
}

func (self Entry) String() string {
	return fmt.Sprintf("%s(id=%d, seq=%d, %s)=%v", self.Name, self.Id, self.SequenceNumber, self.Type, self.Value)
}
