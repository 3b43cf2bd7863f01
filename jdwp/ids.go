package jdwp

import "encoding/binary"

// Identifiers are opaque handles minted by the runtime. The engine only
// encodes and decodes them.
//
// ObjectID and RefTypeID must have the same width; one 8 byte codec serves
// both. That does not make them interchangeable.
type (
	FieldID   uint32 // static or instance field
	MethodID  uint32 // any kind of method, including constructors
	ObjectID  uint64 // any object (thread, string, array, ...)
	RefTypeID uint64 // like ObjectID, but unique for Class objects
	FrameID   uint64 // short-lived stack frame
)

// Widths on the wire, as reported by VirtualMachine.IDSizes.
const (
	FieldIDSize   = 4
	MethodIDSize  = 4
	ObjectIDSize  = 8
	RefTypeIDSize = 8
	FrameIDSize   = 8
)

func ReadFieldID(r *Reader) FieldID           { return FieldID(r.Read4BE()) }
func ReadMethodID(r *Reader) MethodID         { return MethodID(r.Read4BE()) }
func ReadObjectID(r *Reader) ObjectID         { return ObjectID(r.Read8BE()) }
func ReadRefTypeID(r *Reader) RefTypeID       { return RefTypeID(r.Read8BE()) }
func ReadFrameID(r *Reader) FrameID           { return FrameID(r.Read8BE()) }
func SetFieldID(b []byte, v FieldID)          { binary.BigEndian.PutUint32(b, uint32(v)) }
func SetMethodID(b []byte, v MethodID)        { binary.BigEndian.PutUint32(b, uint32(v)) }
func SetObjectID(b []byte, v ObjectID)        { binary.BigEndian.PutUint64(b, uint64(v)) }
func SetRefTypeID(b []byte, v RefTypeID)      { binary.BigEndian.PutUint64(b, uint64(v)) }
func SetFrameID(b []byte, v FrameID)          { binary.BigEndian.PutUint64(b, uint64(v)) }
func (e *ExpandBuf) AddFieldID(v FieldID)     { e.Add4BE(uint32(v)) }
func (e *ExpandBuf) AddMethodID(v MethodID)   { e.Add4BE(uint32(v)) }
func (e *ExpandBuf) AddObjectID(v ObjectID)   { e.Add8BE(uint64(v)) }
func (e *ExpandBuf) AddRefTypeID(v RefTypeID) { e.Add8BE(uint64(v)) }
func (e *ExpandBuf) AddFrameID(v FrameID)     { e.Add8BE(uint64(v)) }
