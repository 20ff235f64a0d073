package lesson

import "iter"

// Located is an activity together with its place in the lesson.
type Located struct {
	Activity      *Activity
	Moment        *Moment
	MomentIndex   int
	ActivityIndex int
	Position      int // 1-indexed over the whole lesson
	IsFirst       bool
	IsLast        bool
}

// TotalActivities is the number of activities across all moments.
func (c *Content) TotalActivities() int {
	n := 0
	for _, m := range c.Moments {
		n += len(m.Activities)
	}
	return n
}

// All yields every activity in document order: moment by moment, and within
// a moment in declaration order.
func (c *Content) All() iter.Seq[Located] {
	return func(yield func(Located) bool) {
		total := c.TotalActivities()
		pos := 0
		for mi := range c.Moments {
			m := &c.Moments[mi]
			for ai := range m.Activities {
				pos++
				loc := Located{
					Activity:      &m.Activities[ai],
					Moment:        m,
					MomentIndex:   mi,
					ActivityIndex: ai,
					Position:      pos,
					IsFirst:       pos == 1,
					IsLast:        pos == total,
				}
				if !yield(loc) {
					return
				}
			}
		}
	}
}

// Locate finds an activity by id. An empty id means "not started yet" and
// resolves to the first activity. Nil is returned for unknown ids and for
// lessons without activities.
func (c *Content) Locate(activityID string) *Located {
	for loc := range c.All() {
		if activityID == "" || loc.Activity.ID == activityID {
			return &loc
		}
	}
	return nil
}

// First returns the first activity, or nil for an empty lesson.
func (c *Content) First() *Located {
	return c.Locate("")
}

// Next returns the activity right after activityID in document order, or nil
// when activityID is the last activity or unknown.
func (c *Content) Next(activityID string) *Located {
	found := false
	for loc := range c.All() {
		if found {
			return &loc
		}
		if loc.Activity.ID == activityID {
			found = true
		}
	}
	return nil
}

// Position returns the 1-indexed position of activityID, or 0 if absent.
func (c *Content) Position(activityID string) int {
	if loc := c.Locate(activityID); loc != nil && activityID != "" {
		return loc.Position
	}
	return 0
}
