package domain

import (
	"sort"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// DeviceAction is what a device event does
type DeviceAction string

const (
	ActionInsert DeviceAction = "insertion"
	ActionRemove DeviceAction = "removal"
)

// DeviceEvent is an insertion or removal extracted from a consultation
type DeviceEvent struct {
	ConsultationID types.ID     `json:"consultation_id"`
	Sequence       int          `json:"sequence"`
	Date           types.Date   `json:"date"`
	Action         DeviceAction `json:"action"`
	Type           DeviceType   `json:"type"`
}

// DeviceState is NoDevice (zero value) or DeviceActive(Active)
type DeviceState struct {
	Active DeviceType `json:"active_device,omitempty"`
}

// NoDevice is the initial state
func NoDevice() DeviceState { return DeviceState{} }

// DeviceActive is the state with device t in place
func DeviceActive(t DeviceType) DeviceState { return DeviceState{Active: t} }

// IsActive reports whether a device is in place
func (s DeviceState) IsActive() bool { return s.Active != DeviceNone }

func (s DeviceState) String() string {
	if !s.IsActive() {
		return "NoDevice"
	}
	return "DeviceActive(" + string(s.Active) + ")"
}

// ConflictReason says why a device event was rejected by the state machine
type ConflictReason string

const (
	ConflictInsertWhileActive   ConflictReason = "insert_while_active"
	ConflictRemoveWithoutDevice ConflictReason = "remove_without_device"
	ConflictRemoveTypeMismatch  ConflictReason = "remove_type_mismatch"
	ConflictUnknownDeviceType   ConflictReason = "unknown_device_type"
)

// DeviceConflict is a rejected event, reported as data
type DeviceConflict struct {
	Event  DeviceEvent    `json:"event"`
	Reason ConflictReason `json:"reason"`
	// Active is the state's device when the event was rejected
	Active DeviceType `json:"active_device,omitempty"`
}

// Transition applies one event. A rejected event leaves the state unchanged
// and is returned as a conflict.
//
//	NoDevice        --Insert(t)--> DeviceActive(t)
//	DeviceActive(t) --Remove(t)--> NoDevice
func (s DeviceState) Transition(e DeviceEvent) (DeviceState, *DeviceConflict) {
	reject := func(reason ConflictReason) (DeviceState, *DeviceConflict) {
		return s, &DeviceConflict{Event: e, Reason: reason, Active: s.Active}
	}

	if !e.Type.IsDevice() {
		return reject(ConflictUnknownDeviceType)
	}

	switch e.Action {
	case ActionInsert:
		if s.IsActive() {
			return reject(ConflictInsertWhileActive)
		}
		return DeviceActive(e.Type), nil
	case ActionRemove:
		if !s.IsActive() {
			return reject(ConflictRemoveWithoutDevice)
		}
		if s.Active != e.Type {
			return reject(ConflictRemoveTypeMismatch)
		}
		return NoDevice(), nil
	}
	return reject(ConflictUnknownDeviceType)
}

// DeviceTimeline is the result of folding a patient's device events
type DeviceTimeline struct {
	State     DeviceState      `json:"state"`
	Conflicts []DeviceConflict `json:"conflicts"`
	// Since is the insertion that produced the current active device
	Since *DeviceEvent `json:"since,omitempty"`
}

// SortDeviceEvents orders events by date, then consultation sequence.
// Within one consultation a removal comes before an insertion.
func SortDeviceEvents(events []DeviceEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Action == ActionRemove && b.Action == ActionInsert
	})
}

// FoldDeviceEvents replays events in chronological order from NoDevice.
// It never fails: events the state machine rejects are skipped and listed.
func FoldDeviceEvents(events []DeviceEvent) DeviceTimeline {
	ordered := make([]DeviceEvent, len(events))
	copy(ordered, events)
	SortDeviceEvents(ordered)

	tl := DeviceTimeline{State: NoDevice(), Conflicts: []DeviceConflict{}}
	for i := range ordered {
		next, conflict := tl.State.Transition(ordered[i])
		if conflict != nil {
			tl.Conflicts = append(tl.Conflicts, *conflict)
			continue
		}
		if ordered[i].Action == ActionInsert {
			ev := ordered[i]
			tl.Since = &ev
		} else {
			tl.Since = nil
		}
		tl.State = next
	}
	return tl
}

// CurrentState is the state after folding events
func CurrentState(events []DeviceEvent) DeviceState {
	return FoldDeviceEvents(events).State
}

// HasConflictingActiveInsertion folds every event not belonging to the
// consultation excluding and reports the active device, if any. A new
// insertion must be refused while it reports one.
func HasConflictingActiveInsertion(events []DeviceEvent, excluding types.ID) (DeviceType, bool) {
	others := make([]DeviceEvent, 0, len(events))
	for _, e := range events {
		if !excluding.IsZero() && e.ConsultationID == excluding {
			continue
		}
		others = append(others, e)
	}
	state := CurrentState(others)
	return state.Active, state.IsActive()
}

// DeviceStateAt folds only the events that precede a consultation with the
// given date and sequence, giving the state that consultation starts from.
func DeviceStateAt(events []DeviceEvent, date types.Date, sequence int) DeviceState {
	before := make([]DeviceEvent, 0, len(events))
	for _, e := range events {
		if c := e.Date.Compare(date); c < 0 || (c == 0 && e.Sequence < sequence) {
			before = append(before, e)
		}
	}
	return CurrentState(before)
}

// NewConflicts lists the conflicts of after that before did not have.
// A conflict is identified by its event's consultation and action.
func NewConflicts(before, after DeviceTimeline) []DeviceConflict {
	type key struct {
		consultation types.ID
		action       DeviceAction
	}
	seen := make(map[key]bool, len(before.Conflicts))
	for _, c := range before.Conflicts {
		seen[key{c.Event.ConsultationID, c.Event.Action}] = true
	}
	var added []DeviceConflict
	for _, c := range after.Conflicts {
		if !seen[key{c.Event.ConsultationID, c.Event.Action}] {
			added = append(added, c)
		}
	}
	return added
}

// EventsFromConsultations extracts the device events of non-voided consultations
func EventsFromConsultations(consultations []Consultation) []DeviceEvent {
	var events []DeviceEvent
	for i := range consultations {
		events = append(events, consultations[i].DeviceEvents()...)
	}
	SortDeviceEvents(events)
	return events
}
