package verification

import "fmt"

// Countdown gates the resend action behind a per-screen cooldown. It has no
// timer of its own: the owning screen calls Tick once per second while the
// countdown is active and stops ticking at zero or on teardown.
type Countdown struct {
	remaining int
}

// Start arms the countdown with the given window.
func (c *Countdown) Start(windowSeconds int) {
	if windowSeconds < 0 {
		windowSeconds = 0
	}
	c.remaining = windowSeconds
}

// Tick consumes one second; it is a no-op once the countdown has expired.
func (c *Countdown) Tick() {
	if c.remaining > 0 {
		c.remaining--
	}
}

func (c *Countdown) Remaining() int { return c.remaining }

func (c *Countdown) Active() bool { return c.remaining > 0 }

func (c *Countdown) CanResend() bool { return c.remaining == 0 }

// FormatClock renders a second count as M:SS, the way the teacher-flow screen
// displays its cooldown. Other screens phrase the count in words instead;
// formatting is the caller's choice, not part of the countdown contract.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
