package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepOrdersByTicksThenInsertion(t *testing.T) {
	s := New()
	var order []int

	s.Schedule(10, func() { order = append(order, 1) })
	s.Schedule(5, func() { order = append(order, 2) })
	s.Schedule(5, func() { order = append(order, 3) })

	require.Nil(t, s.Step(10))
	require.Equal(t, []int{2, 3, 1}, order)
}

func TestCancelSkipsJob(t *testing.T) {
	s := New()
	ran := false
	h := s.Schedule(1, func() { ran = true })
	s.Cancel(h)
	require.Nil(t, s.Step(1))
	require.False(t, ran)
}

func TestCancelUnknownHandleIsNoop(t *testing.T) {
	s := New()
	s.Cancel(Handle(999))
}

func TestReentrantScheduleHonoredInSameSweepIfDue(t *testing.T) {
	s := New()
	var order []string

	s.Schedule(1, func() {
		order = append(order, "first")
		s.Schedule(1, func() { order = append(order, "reentrant-due") })
		s.Schedule(5, func() { order = append(order, "reentrant-later") })
	})

	require.Nil(t, s.Step(1))
	require.Equal(t, []string{"first", "reentrant-due"}, order)

	require.Nil(t, s.Step(5))
	require.Equal(t, []string{"first", "reentrant-due", "reentrant-later"}, order)
}

func TestFaultStopsStepping(t *testing.T) {
	s := New()
	ranAfter := false
	s.Schedule(1, func() { panic("boom") })
	s.Schedule(1, func() { ranAfter = true })

	fault := s.Step(1)
	require.NotNil(t, fault)
	require.Contains(t, fault.Error(), "boom")
	require.False(t, ranAfter)

	// Once faulted, further Step calls keep returning the same fault.
	require.Equal(t, fault, s.Step(100))
}

func TestPeekReturnsEarliestNonCancelled(t *testing.T) {
	s := New()
	h := s.Schedule(5, func() {})
	s.Schedule(10, func() {})
	s.Cancel(h)

	tick, ok := s.Peek()
	require.True(t, ok)
	require.EqualValues(t, 10, tick)
}

func TestJobGroupScheduleReplacesTag(t *testing.T) {
	s := New()
	g := NewJobGroup(s)

	var ran []string
	g.Schedule("tag", 5, func() { ran = append(ran, "old") })
	g.Schedule("tag", 10, func() { ran = append(ran, "new") })

	require.Nil(t, s.Step(10))
	require.Equal(t, []string{"new"}, ran)
}

func TestJobGroupCancelUnknownReturnsFalse(t *testing.T) {
	s := New()
	g := NewJobGroup(s)
	require.False(t, g.Cancel("nope"))
}

func TestJobGroupCancelAll(t *testing.T) {
	s := New()
	g := NewJobGroup(s)
	ran := false
	g.Schedule("a", 1, func() { ran = true })
	g.Schedule("b", 2, func() { ran = true })
	g.CancelAll()

	require.Nil(t, s.Step(100))
	require.False(t, ran)
}

func TestJobGroupTagClearedOnNaturalCompletion(t *testing.T) {
	s := New()
	g := NewJobGroup(s)
	g.Schedule("tag", 1, func() {})
	require.Nil(t, s.Step(1))
	require.False(t, g.Cancel("tag"))
}
