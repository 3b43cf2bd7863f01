package jdwp

import "fmt"

// Command sets and commands the engine sends or handles itself.
const (
	CmdSetVirtualMachine uint8 = 1
	CmdSetEventRequest   uint8 = 15
	CmdSetEvent          uint8 = 64
	CmdSetDDM            uint8 = 199

	CmdVMVersion uint8 = 1
	CmdVMDispose uint8 = 6
	CmdVMIDSizes uint8 = 7
	CmdVMSuspend uint8 = 8
	CmdVMResume  uint8 = 9
	CmdVMExit    uint8 = 10

	CmdEventRequestSet                 uint8 = 1
	CmdEventRequestClear               uint8 = 2
	CmdEventRequestClearAllBreakpoints uint8 = 3

	CmdEventComposite uint8 = 100

	CmdDDMChunk uint8 = 1
)

// EventKind identifies an event in a Composite packet and in event requests.
type EventKind uint8

const (
	EventSingleStep    EventKind = 1
	EventBreakpoint    EventKind = 2
	EventFramePop      EventKind = 3
	EventException     EventKind = 4
	EventUserDefined   EventKind = 5
	EventThreadStart   EventKind = 6
	EventThreadDeath   EventKind = 7
	EventClassPrepare  EventKind = 8
	EventClassUnload   EventKind = 9
	EventClassLoad     EventKind = 10
	EventFieldAccess   EventKind = 20
	EventFieldModify   EventKind = 21
	EventExceptionCtch EventKind = 30
	EventMethodEntry   EventKind = 40
	EventMethodExit    EventKind = 41
	EventVMStart       EventKind = 90
	EventVMDeath       EventKind = 99
)

func (k EventKind) String() string {
	switch k {
	case EventSingleStep:
		return "SingleStep"
	case EventBreakpoint:
		return "Breakpoint"
	case EventFramePop:
		return "FramePop"
	case EventException:
		return "Exception"
	case EventUserDefined:
		return "UserDefined"
	case EventThreadStart:
		return "ThreadStart"
	case EventThreadDeath:
		return "ThreadDeath"
	case EventClassPrepare:
		return "ClassPrepare"
	case EventClassUnload:
		return "ClassUnload"
	case EventClassLoad:
		return "ClassLoad"
	case EventFieldAccess:
		return "FieldAccess"
	case EventFieldModify:
		return "FieldModification"
	case EventExceptionCtch:
		return "ExceptionCatch"
	case EventMethodEntry:
		return "MethodEntry"
	case EventMethodExit:
		return "MethodExit"
	case EventVMStart:
		return "VMStart"
	case EventVMDeath:
		return "VMDeath"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// known reports whether k is a JDWP event kind at all.
func (k EventKind) known() bool {
	switch k {
	case EventSingleStep, EventBreakpoint, EventFramePop, EventException,
		EventUserDefined, EventThreadStart, EventThreadDeath, EventClassPrepare,
		EventClassUnload, EventClassLoad, EventFieldAccess, EventFieldModify,
		EventExceptionCtch, EventMethodEntry, EventMethodExit, EventVMStart,
		EventVMDeath:
		return true
	default:
		return false
	}
}

// reportable lists the kinds this engine can ever post. Requests for other
// kinds are accepted (the debugger may set them speculatively) but never fire.
func (k EventKind) reportable() bool {
	switch k {
	case EventSingleStep, EventBreakpoint, EventException, EventThreadStart,
		EventThreadDeath, EventClassPrepare, EventMethodEntry, EventMethodExit,
		EventVMStart, EventVMDeath:
		return true
	default:
		return false
	}
}

// SuspendPolicy says which threads are stopped when an event fires.
type SuspendPolicy uint8

const (
	SuspendNone        SuspendPolicy = 0
	SuspendEventThread SuspendPolicy = 1
	SuspendAll         SuspendPolicy = 2
)

func (p SuspendPolicy) String() string {
	switch p {
	case SuspendNone:
		return "none"
	case SuspendEventThread:
		return "event-thread"
	case SuspendAll:
		return "all"
	default:
		return fmt.Sprintf("SuspendPolicy(%d)", uint8(p))
	}
}

func (p SuspendPolicy) valid() bool {
	switch p {
	case SuspendNone, SuspendEventThread, SuspendAll:
		return true
	default:
		return false
	}
}

// TypeTag distinguishes classes, interfaces and arrays.
type TypeTag uint8

const (
	TypeTagClass     TypeTag = 1
	TypeTagInterface TypeTag = 2
	TypeTagArray     TypeTag = 3
)

// ClassStatus is a bitfield reported with ClassPrepare.
type ClassStatus uint32

const (
	ClassStatusVerified    ClassStatus = 1
	ClassStatusPrepared    ClassStatus = 2
	ClassStatusInitialized ClassStatus = 4
	ClassStatusError       ClassStatus = 8
)

// Tag values for tagged object ids.
const (
	TagObject uint8 = 'L'
	TagThread uint8 = 't'
)

// ErrorCode is carried in reply packets.
type ErrorCode uint16

const (
	ErrNone             ErrorCode = 0
	ErrInvalidThread    ErrorCode = 10
	ErrInvalidObject    ErrorCode = 20
	ErrInvalidClass     ErrorCode = 21
	ErrNotImplemented   ErrorCode = 99
	ErrInvalidEventType ErrorCode = 102
	ErrIllegalArgument  ErrorCode = 103
	ErrVMDead           ErrorCode = 112
	ErrInternal         ErrorCode = 113
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "NONE"
	case ErrInvalidThread:
		return "INVALID_THREAD"
	case ErrInvalidObject:
		return "INVALID_OBJECT"
	case ErrInvalidClass:
		return "INVALID_CLASS"
	case ErrNotImplemented:
		return "NOT_IMPLEMENTED"
	case ErrInvalidEventType:
		return "INVALID_EVENT_TYPE"
	case ErrIllegalArgument:
		return "ILLEGAL_ARGUMENT"
	case ErrVMDead:
		return "VM_DEAD"
	case ErrInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint16(c))
	}
}

// ModifierKind identifies an event request modifier.
type ModifierKind uint8

const (
	ModCount           ModifierKind = 1
	ModConditional     ModifierKind = 2
	ModThreadOnly      ModifierKind = 3
	ModClassOnly       ModifierKind = 4
	ModClassMatch      ModifierKind = 5
	ModClassExclude    ModifierKind = 6
	ModLocationOnly    ModifierKind = 7
	ModExceptionOnly   ModifierKind = 8
	ModFieldOnly       ModifierKind = 9
	ModStep            ModifierKind = 10
	ModInstanceOnly    ModifierKind = 11
	ModSourceNameMatch ModifierKind = 12
)

// LocationEventFlags are the location events passed to PostLocationEvent.
type LocationEventFlags uint8

const (
	LocBreakpoint  LocationEventFlags = 0x01
	LocSingleStep  LocationEventFlags = 0x02
	LocMethodEntry LocationEventFlags = 0x04
	LocMethodExit  LocationEventFlags = 0x08
)

// locationEventOrder is the order in which coinciding location events are
// listed in one Composite packet.
var locationEventOrder = [...]struct {
	flag LocationEventFlags
	kind EventKind
}{
	{LocBreakpoint, EventBreakpoint},
	{LocSingleStep, EventSingleStep},
	{LocMethodEntry, EventMethodEntry},
	{LocMethodExit, EventMethodExit},
}
