package jdwp

import "fmt"

// Location is a code position: the defining type, the method, and an index
// relative to the method's code.
//
// The zero Location means "no location"; PostException uses it as the catch
// location of an uncaught exception.
type Location struct {
	TypeTag  TypeTag
	ClassID  RefTypeID
	MethodID MethodID
	Index    uint64
}

// LocationSize is the encoded width of a Location.
const LocationSize = 1 + RefTypeIDSize + MethodIDSize + 8

// IsZero reports whether l is the "no location" sentinel.
func (l Location) IsZero() bool {
	return l == Location{}
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%#x:%#x:%d", l.TypeTag, uint64(l.ClassID), uint32(l.MethodID), l.Index)
}

// ReadLocation consumes LocationSize bytes.
func ReadLocation(r *Reader) Location {
	return Location{
		TypeTag:  TypeTag(r.Read1()),
		ClassID:  ReadRefTypeID(r),
		MethodID: ReadMethodID(r),
		Index:    r.Read8BE(),
	}
}

// AddLocation appends l in wire format.
func (e *ExpandBuf) AddLocation(l Location) {
	e.Add1(uint8(l.TypeTag))
	e.AddRefTypeID(l.ClassID)
	e.AddMethodID(l.MethodID)
	e.Add8BE(l.Index)
}
