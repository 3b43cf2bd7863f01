package jdwp

import (
	"strings"
	"sync"
)

// EventRequest is a debugger's registration for one event kind, filtered by
// its modifiers.
type EventRequest struct {
	ID        uint32
	Kind      EventKind
	Policy    SuspendPolicy
	Modifiers []Modifier
}

// Modifier filters the occurrences an EventRequest reports. Only the fields
// relevant to Kind are set.
type Modifier struct {
	Kind ModifierKind

	// ModCount
	Count int32
	// ModThreadOnly, ModStep
	ThreadID ObjectID
	// ModClassOnly, ModExceptionOnly (zero means any exception), ModFieldOnly
	ClassID RefTypeID
	// ModClassMatch, ModClassExclude
	Pattern string
	// ModLocationOnly
	Location Location
	// ModExceptionOnly
	Caught, Uncaught bool
	// ModFieldOnly
	FieldID FieldID
	// ModStep
	StepSize, StepDepth int32
	// ModInstanceOnly
	InstanceID ObjectID
}

// EventRequestObserver is optionally implemented by a VM that must act on
// requests as they come and go, e.g. to plant breakpoints or enable method
// entry hooks.
type EventRequestObserver interface {
	EventRequestAdded(req EventRequest)
	EventRequestRemoved(req EventRequest)
}

// eventBasket holds everything known about one occurrence, used both to
// filter requests and to encode the event.
type eventBasket struct {
	thread  ObjectID
	loc     Location
	hasLoc  bool
	thisPtr ObjectID

	excepID      ObjectID
	excepClassID RefTypeID
	catchLoc     Location

	tag       TypeTag
	classID   RefTypeID
	signature string
	status    ClassStatus

	className     string
	classResolved bool
}

// resolveClassName returns the dotted name of the class the event happened
// in, looking it up through the VM once.
func (b *eventBasket) resolveClassName(vm VM) string {
	if b.classResolved {
		return b.className
	}
	b.classResolved = true
	sig := b.signature
	if sig == "" && b.hasLoc {
		sig, _ = vm.ClassDescriptor(b.loc.ClassID)
	}
	b.className = descriptorToName(sig)
	return b.className
}

func (b *eventBasket) eventClassID() RefTypeID {
	if b.classID != 0 {
		return b.classID
	}
	if b.hasLoc {
		return b.loc.ClassID
	}
	return 0
}

// descriptorToName turns "Ljava/lang/String;" into "java.lang.String".
func descriptorToName(sig string) string {
	if len(sig) >= 2 && sig[0] == 'L' && sig[len(sig)-1] == ';' {
		sig = sig[1 : len(sig)-1]
	}
	return strings.ReplaceAll(sig, "/", ".")
}

// matchPattern implements the restricted class patterns: an exact name, or a
// name starting or ending with '*'.
func matchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}

type matchedEvent struct {
	kind      EventKind
	requestID uint32
}

// eventRequests is the registry of active requests, in registration order.
type eventRequests struct {
	mu struct {
		sync.Mutex
		nextID uint32
		reqs   []*EventRequest
	}
}

func newEventRequests() *eventRequests {
	r := &eventRequests{}
	r.mu.nextID = 1
	return r
}

// add registers req under a fresh id and returns the stored copy.
func (r *eventRequests) add(req EventRequest) EventRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = r.mu.nextID
	r.mu.nextID++
	if r.mu.nextID == 0 {
		r.mu.nextID = 1
	}
	// Count modifiers are decremented in place, so the registry keeps its own
	// copy.
	stored := req
	stored.Modifiers = append([]Modifier(nil), req.Modifiers...)
	r.mu.reqs = append(r.mu.reqs, &stored)
	return req
}

// remove deletes the request with the given kind and id.
func (r *eventRequests) remove(kind EventKind, id uint32) (EventRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, req := range r.mu.reqs {
		if req.ID == id && req.Kind == kind {
			r.mu.reqs = append(r.mu.reqs[:i], r.mu.reqs[i+1:]...)
			return *req, true
		}
	}
	return EventRequest{}, false
}

// removeKind deletes every request of the given kind.
func (r *eventRequests) removeKind(kind EventKind) []EventRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []EventRequest
	kept := r.mu.reqs[:0]
	for _, req := range r.mu.reqs {
		if req.Kind == kind {
			removed = append(removed, *req)
		} else {
			kept = append(kept, req)
		}
	}
	clearTail(r.mu.reqs, len(kept))
	r.mu.reqs = kept
	return removed
}

// clear deletes everything, e.g. when the debugger goes away.
func (r *eventRequests) clear() []EventRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]EventRequest, 0, len(r.mu.reqs))
	for _, req := range r.mu.reqs {
		removed = append(removed, *req)
	}
	r.mu.reqs = nil
	return removed
}

func (r *eventRequests) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mu.reqs)
}

// match finds the requests that fire for the basket, for each of kinds in
// order. It returns the strongest suspend policy among them and the requests
// whose Count modifier expired, which have been removed.
func (r *eventRequests) match(
	kinds []EventKind, b *eventBasket, vm VM,
) (matched []matchedEvent, policy SuspendPolicy, expired []EventRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range kinds {
		for _, req := range r.mu.reqs {
			if req.Kind != kind {
				continue
			}
			ok, countExpired := req.matches(b, vm)
			if countExpired {
				expired = append(expired, *req)
			}
			if !ok {
				continue
			}
			matched = append(matched, matchedEvent{kind: kind, requestID: req.ID})
			if req.Policy > policy {
				policy = req.Policy
			}
		}
	}
	if len(expired) > 0 {
		kept := r.mu.reqs[:0]
		for _, req := range r.mu.reqs {
			if !containsRequest(expired, req.ID) {
				kept = append(kept, req)
			}
		}
		clearTail(r.mu.reqs, len(kept))
		r.mu.reqs = kept
	}
	return matched, policy, expired
}

// matches applies the modifiers in order. A Count modifier only counts
// occurrences that passed the modifiers before it. Once it reaches zero the
// request is spent, even if a later modifier rejects that occurrence.
func (req *EventRequest) matches(b *eventBasket, vm VM) (ok bool, countExpired bool) {
	for i := range req.Modifiers {
		if !req.modifierMatches(i, b, vm, &countExpired) {
			return false, countExpired
		}
	}
	return true, countExpired
}

// modifierMatches applies modifier i. It records in countExpired when a
// Count modifier reaches zero.
func (req *EventRequest) modifierMatches(i int, b *eventBasket, vm VM, countExpired *bool) bool {
	m := &req.Modifiers[i]
	switch m.Kind {
	case ModCount:
		m.Count--
		if m.Count > 0 {
			return false
		}
		*countExpired = true
	case ModThreadOnly, ModStep:
		if b.thread != m.ThreadID {
			return false
		}
	case ModClassOnly:
		if b.eventClassID() != m.ClassID {
			return false
		}
	case ModClassMatch:
		if !matchPattern(m.Pattern, b.resolveClassName(vm)) {
			return false
		}
	case ModClassExclude:
		if matchPattern(m.Pattern, b.resolveClassName(vm)) {
			return false
		}
	case ModLocationOnly:
		if !b.hasLoc || b.loc != m.Location {
			return false
		}
	case ModExceptionOnly:
		if req.Kind != EventException {
			return false
		}
		if m.ClassID != 0 && m.ClassID != b.excepClassID {
			return false
		}
		caught := !b.catchLoc.IsZero()
		if (caught && !m.Caught) || (!caught && !m.Uncaught) {
			return false
		}
	case ModFieldOnly:
		// No field events are ever posted.
		return false
	case ModInstanceOnly:
		if b.thisPtr == 0 || b.thisPtr != m.InstanceID {
			return false
		}
	case ModConditional, ModSourceNameMatch:
		// Rejected when the request is set.
		return false
	default:
		return false
	}
	return true
}

func containsRequest(reqs []EventRequest, id uint32) bool {
	for _, r := range reqs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func clearTail(reqs []*EventRequest, from int) {
	for i := from; i < len(reqs); i++ {
		reqs[i] = nil
	}
}
