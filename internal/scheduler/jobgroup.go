package scheduler

// JobGroup is the named-job overlay described in spec §4.A: a bijection
// between optional string tags and pending jobs on a single Scheduler.
type JobGroup struct {
	sched *Scheduler
	tags  map[string]Handle
}

// NewJobGroup wraps a Scheduler with tag-based bookkeeping.
func NewJobGroup(s *Scheduler) *JobGroup {
	return &JobGroup{sched: s, tags: make(map[string]Handle)}
}

// Schedule inserts a job under tag, cancelling any job previously
// registered under the same tag. The tag is cleared automatically once the
// job runs (natural completion also clears it).
func (g *JobGroup) Schedule(tag string, at Tick, fn func()) Handle {
	if old, ok := g.tags[tag]; ok {
		g.sched.Cancel(old)
	}
	h := g.sched.Schedule(at, func() {
		delete(g.tags, tag)
		fn()
	})
	g.tags[tag] = h
	return h
}

// Cancel cancels the job registered under tag. Cancelling an unknown tag is
// a no-op that returns false.
func (g *JobGroup) Cancel(tag string) bool {
	h, ok := g.tags[tag]
	if !ok {
		return false
	}
	delete(g.tags, tag)
	g.sched.Cancel(h)
	return true
}

// CancelAll cancels every job currently tracked by this group.
func (g *JobGroup) CancelAll() {
	for tag, h := range g.tags {
		g.sched.Cancel(h)
		delete(g.tags, tag)
	}
}
