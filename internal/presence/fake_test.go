package presence

import (
	"context"
	"sort"
	"time"
)

// manualScheduler is a deterministic Scheduler driven by Advance.
type manualScheduler struct {
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	at        time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) func() bool {
	task := &manualTask{at: s.now + d, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() bool {
		if task.fired || task.cancelled {
			return false
		}
		task.cancelled = true
		return true
	}
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.now += d
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].at < s.tasks[j].at })
	for _, task := range s.tasks {
		if task.at <= s.now && !task.fired && !task.cancelled {
			task.fired = true
			task.fn()
		}
	}
}

func (s *manualScheduler) active() int {
	n := 0
	for _, task := range s.tasks {
		if !task.fired && !task.cancelled {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) UserOnline(userID string)  { n.events = append(n.events, "online:"+userID) }
func (n *recordingNotifier) UserOffline(userID string) { n.events = append(n.events, "offline:"+userID) }

func (n *recordingNotifier) count(event string) int {
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// sharedCluster counts workers per user the way the Redis hash does.
type sharedCluster struct {
	workers map[string]int64
	err     error
}

func (c *sharedCluster) Acquire(_ context.Context, userID string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.workers == nil {
		c.workers = map[string]int64{}
	}
	c.workers[userID]++
	return c.workers[userID], nil
}

func (c *sharedCluster) Release(_ context.Context, userID string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.workers == nil {
		c.workers = map[string]int64{}
	}
	c.workers[userID]--
	n := c.workers[userID]
	if n <= 0 {
		delete(c.workers, userID)
	}
	return n, nil
}
