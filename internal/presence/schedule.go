package presence

import "time"

// AfterFuncScheduler schedules with time.AfterFunc and hands the callback to
// enqueue, which must deliver it to the goroutine driving the Tracker.
type AfterFuncScheduler struct {
	Enqueue func(fn func())
}

// Schedule implements Scheduler.
func (s AfterFuncScheduler) Schedule(d time.Duration, fn func()) func() bool {
	timer := time.AfterFunc(d, func() { s.Enqueue(fn) })
	return timer.Stop
}
