package service

import "github.com/pesio-ai/be-ops-reports/internal/repository"

// AttendeeChanges is the write set that turns a persisted attendee list into
// an incoming one.
type AttendeeChanges struct {
	Add    []repository.Attendee
	Update []repository.Attendee
	Remove []repository.Attendee
}

// Empty reports whether there is nothing to write.
func (c AttendeeChanges) Empty() bool {
	return len(c.Add) == 0 && len(c.Update) == 0 && len(c.Remove) == 0
}

// ReconcileAttendees diffs incoming against existing by person id. Entries
// in both are updated when their primary flag or role differs; the rest are
// added or removed. Add and Update follow incoming order, Remove follows
// existing order.
func ReconcileAttendees(incoming, existing []repository.Attendee) AttendeeChanges {
	var changes AttendeeChanges

	byID := make(map[string]repository.Attendee, len(existing))
	for _, a := range existing {
		byID[a.PersonID] = a
	}

	seen := make(map[string]bool, len(incoming))
	for _, a := range incoming {
		if seen[a.PersonID] {
			continue
		}
		seen[a.PersonID] = true

		prev, ok := byID[a.PersonID]
		switch {
		case !ok:
			changes.Add = append(changes.Add, a)
		case prev.Primary != a.Primary || prev.Role != a.Role:
			changes.Update = append(changes.Update, a)
		}
	}

	for _, a := range existing {
		if !seen[a.PersonID] {
			changes.Remove = append(changes.Remove, a)
		}
	}
	return changes
}

// MarkerChanges is the write set for activity marker associations.
type MarkerChanges struct {
	Add    []string
	Remove []string
}

// Empty reports whether there is nothing to write.
func (c MarkerChanges) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0
}

// ReconcileActivityMarkers is a set difference by id in both directions.
func ReconcileActivityMarkers(incoming, existing []string) MarkerChanges {
	var changes MarkerChanges

	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}
	want := make(map[string]bool, len(incoming))
	for _, id := range incoming {
		if want[id] {
			continue
		}
		want[id] = true
		if !have[id] {
			changes.Add = append(changes.Add, id)
		}
	}
	for _, id := range existing {
		if !want[id] {
			changes.Remove = append(changes.Remove, id)
		}
	}
	return changes
}
