package clock

import "time"

// FakeClock is a manually advanced Clock for tests. Completion timestamps in
// the transaction store come from here during tests, so assertions can pin
// exact times.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
