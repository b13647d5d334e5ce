package billing

import (
	"sort"
	"time"
)

// =============================================================================
// SESSION ACCRUAL WALKER
// =============================================================================

// Accrual holds the running totals since the anchor. Totals are never reset
// per cycle; splitting into cycles is the classifier's job.
type Accrual struct {
	Countable int
	Attended  int
	Walked    int

	// CountableDates[i] is the date of the (i+1)-th countable session.
	CountableDates []time.Time
}

// Absent is the number of walked sessions the student did not attend.
func (a Accrual) Absent() int { return a.Walked - a.Attended }

// SelectSessions returns the sessions of the current cycle in chronological
// order (ties by ID): COMPLETED, admitted by the anchor, inside the semester
// window and not after now.
//
// Every session of the group is checked for a usable date, including
// sessions that would be skipped; a null date is an OrderingError, never
// coerced to now. Sessions of other groups are ignored.
func SelectSessions(cfg CycleConfig, anchor Anchor, groupID GroupID, sessions []SessionRecord, now time.Time) ([]SessionRecord, error) {
	until := now
	if cfg.SemesterEnd != nil && cfg.SemesterEnd.Before(until) {
		until = *cfg.SemesterEnd
	}

	var selected []SessionRecord
	for _, s := range sessions {
		if s.GroupID != groupID {
			continue
		}
		if s.Date.IsZero() {
			return nil, &OrderingError{Record: "session", ID: string(s.ID), Field: "date"}
		}
		switch s.Status {
		case SessionCompleted:
		case SessionScheduled, SessionCancelled:
			continue
		default:
			return nil, &InvalidInputError{Field: "session.status", Reason: "unknown status " + string(s.Status) + " on " + string(s.ID)}
		}
		if !anchor.Admits(s.Date) || s.Date.After(until) {
			continue
		}
		if cfg.SemesterStart != nil && s.Date.Before(*cfg.SemesterStart) {
			continue
		}
		selected = append(selected, s)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Date.Equal(selected[j].Date) {
			return selected[i].ID < selected[j].ID
		}
		return selected[i].Date.Before(selected[j].Date)
	})
	return selected, nil
}

// WalkSessions replays the selected sessions for one student.
//
// For each session: a missing mark is ABSENT; Attended++ iff PRESENT/LATE;
// Countable++ iff CountAbsences or attended. Countable dates are recorded
// in UTC so the grace period is counted the same way whatever zone the
// caller's store returns.
//
// Marks of other students are ignored. Two marks for the same session and
// student, or a mark with an unknown status, are InvalidInputError.
func WalkSessions(cfg CycleConfig, studentID StudentID, sessions []SessionRecord, marks []AttendanceMark) (Accrual, error) {
	bySession := make(map[SessionID]AttendanceStatus, len(sessions))
	for _, m := range marks {
		if m.StudentID != studentID {
			continue
		}
		if !m.Status.Valid() {
			return Accrual{}, &InvalidInputError{Field: "attendance.status", Reason: "unknown status " + string(m.Status) + " on session " + string(m.SessionID)}
		}
		if _, dup := bySession[m.SessionID]; dup {
			return Accrual{}, &InvalidInputError{Field: "attendance", Reason: "duplicate mark for session " + string(m.SessionID)}
		}
		bySession[m.SessionID] = m.Status
	}

	acc := Accrual{CountableDates: make([]time.Time, 0, len(sessions))}
	for _, s := range sessions {
		mark, ok := bySession[s.ID]
		if !ok {
			mark = AttendanceAbsent
		}

		acc.Walked++
		attended := mark.Attended()
		if attended {
			acc.Attended++
		}
		if cfg.CountAbsences || attended {
			acc.Countable++
			acc.CountableDates = append(acc.CountableDates, s.Date.UTC())
		}
	}
	return acc, nil
}
