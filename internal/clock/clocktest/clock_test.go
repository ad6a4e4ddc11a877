package clocktest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockAdvance(t *testing.T) {
	t.Run("callbacks run in deadline order", func(t *testing.T) {
		c := New()
		var got []string
		c.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
		c.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
		c.AfterFunc(20*time.Millisecond, func() { got = append(got, "b") })

		c.Advance(25 * time.Millisecond)
		assert.Equal(t, []string{"a", "b"}, got)

		c.Advance(5 * time.Millisecond)
		assert.Equal(t, []string{"a", "b", "c"}, got)
		assert.Equal(t, 30*time.Millisecond, c.Now())
	})

	t.Run("zero delay fires on a zero advance", func(t *testing.T) {
		c := New()
		fired := false
		c.AfterFunc(0, func() { fired = true })

		c.Advance(0)
		assert.True(t, fired)
	})

	t.Run("every fires once per period", func(t *testing.T) {
		c := New()
		n := 0
		c.Every(10*time.Millisecond, func() { n++ })

		c.Advance(95 * time.Millisecond)
		assert.Equal(t, 9, n)
	})

	t.Run("timers armed by callbacks fire within the same advance", func(t *testing.T) {
		c := New()
		var at []time.Duration
		c.AfterFunc(10*time.Millisecond, func() {
			at = append(at, c.Now())
			c.AfterFunc(10*time.Millisecond, func() { at = append(at, c.Now()) })
		})

		c.Advance(time.Second)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, at)
	})

	t.Run("stop cancels a pending timer", func(t *testing.T) {
		c := New()
		fired := false
		timer := c.AfterFunc(10*time.Millisecond, func() { fired = true })
		timer.Stop()

		c.Advance(time.Second)
		assert.False(t, fired)
		assert.Equal(t, 0, c.Pending())
	})
}
