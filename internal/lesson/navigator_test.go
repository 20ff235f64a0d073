package lesson

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// build creates a lesson whose moments hold the given activity counts.
func build(counts ...int) *Content {
	c := &Content{SchemaVersion: "v1.0.0", Metadata: Metadata{Title: "t"}}
	n := 0
	for mi, k := range counts {
		m := Moment{ID: fmt.Sprintf("m%d", mi+1), Title: fmt.Sprintf("Moment %d", mi+1)}
		for range k {
			n++
			m.Activities = append(m.Activities, Activity{
				ID:           fmt.Sprintf("a%d", n),
				Kind:         KindExplanation,
				Teaching:     Teaching{MainTopic: fmt.Sprintf("topic %d", n)},
				Verification: Verification{Question: "q", Criteria: []string{"c"}},
			})
		}
		c.Moments = append(c.Moments, m)
	}
	return c
}

var shapes = [][]int{
	{1},
	{2},
	{1, 1},
	{3, 1, 2},
	{0, 2, 0, 1},
	{4},
}

func TestTotalActivities(t *testing.T) {
	tests := []struct {
		counts []int
		want   int
	}{
		{nil, 0},
		{[]int{0}, 0},
		{[]int{1}, 1},
		{[]int{3, 1, 2}, 6},
		{[]int{0, 2, 0, 1}, 3},
	}
	for _, tt := range tests {
		if got := build(tt.counts...).TotalActivities(); got != tt.want {
			t.Errorf("TotalActivities(%v) = %d, want %d", tt.counts, got, tt.want)
		}
	}
}

func TestLocate_EmptyIDIsFirstPosition(t *testing.T) {
	for _, s := range shapes {
		c := build(s...)
		first := c.Locate("")
		if first == nil {
			t.Fatalf("%v: Locate(\"\") returned nil", s)
		}
		var atOne *Located
		for loc := range c.All() {
			if loc.Position == 1 {
				atOne = c.Locate(loc.Activity.ID)
				break
			}
		}
		if diff := cmp.Diff(atOne, first); diff != "" {
			t.Fatalf("%v: mismatch (-position1 +empty):\n%s", s, diff)
		}
		if !first.IsFirst || first.Position != 1 {
			t.Fatalf("%v: first flags wrong: %+v", s, first)
		}
	}
}

func TestLocate_EmptyLesson(t *testing.T) {
	if loc := build(0, 0).Locate(""); loc != nil {
		t.Fatalf("expected nil for empty lesson, got %+v", loc)
	}
	if loc := build(2).Locate("missing"); loc != nil {
		t.Fatalf("expected nil for unknown id, got %+v", loc)
	}
}

func TestNext_AdvancesOnePosition(t *testing.T) {
	for _, s := range shapes {
		c := build(s...)
		for loc := range c.All() {
			next := c.Next(loc.Activity.ID)
			if loc.IsLast {
				if next != nil {
					t.Fatalf("%v: Next(last) = %s, want nil", s, next.Activity.ID)
				}
				continue
			}
			if next == nil {
				t.Fatalf("%v: Next(%s) = nil", s, loc.Activity.ID)
			}
			if next.Position != loc.Position+1 {
				t.Fatalf("%v: Next(%s).Position = %d, want %d", s, loc.Activity.ID, next.Position, loc.Position+1)
			}
		}
	}
}

func TestNext_CrossesMomentBoundary(t *testing.T) {
	c := build(2, 0, 1)
	next := c.Next("a2")
	if next == nil || next.Activity.ID != "a3" {
		t.Fatalf("expected a3, got %+v", next)
	}
	if next.MomentIndex != 2 || next.ActivityIndex != 0 {
		t.Fatalf("unexpected indexes: moment %d activity %d", next.MomentIndex, next.ActivityIndex)
	}
	if !next.IsLast {
		t.Fatal("a3 should be last")
	}
}

func TestTotalMatchesWalkLength(t *testing.T) {
	for _, s := range shapes {
		c := build(s...)
		seen := map[string]bool{}
		cur := c.Locate("")
		steps := 0
		for {
			next := c.Next(cur.Activity.ID)
			if next == nil {
				break
			}
			seen[next.Activity.ID] = true
			cur = next
			steps++
		}
		if steps+1 != c.TotalActivities() || len(seen)+1 != c.TotalActivities() {
			t.Fatalf("%v: walked %d distinct (+1), total %d", s, len(seen), c.TotalActivities())
		}
	}
}

func TestPosition(t *testing.T) {
	c := build(3, 1, 2)
	for i := 1; i <= 6; i++ {
		if got := c.Position(fmt.Sprintf("a%d", i)); got != i {
			t.Errorf("Position(a%d) = %d", i, got)
		}
	}
	if got := c.Position("nope"); got != 0 {
		t.Errorf("Position(nope) = %d, want 0", got)
	}
	if got := c.Position(""); got != 0 {
		t.Errorf("Position(\"\") = %d, want 0", got)
	}
}

func TestObjectives(t *testing.T) {
	got := build(1, 2).Objectives()
	want := []string{"topic 1", "topic 2", "topic 3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("objectives mismatch (-want +got):\n%s", diff)
	}
}
