package update

import (
	"testing"
	"time"

	"github.com/jkaflik/shade2mqtt/internal/clock/clocktest"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRequest(t *testing.T) {
	t.Run("first request is granted immediately", func(t *testing.T) {
		s := NewScheduler(clocktest.New(), 200*time.Millisecond)

		granted := false
		s.Request("a", func() { granted = true })
		assert.True(t, granted)
	})

	t.Run("requests inside the interval wait for the next slot", func(t *testing.T) {
		clk := clocktest.New()
		s := NewScheduler(clk, 200*time.Millisecond)

		var got []string
		s.Request("a", func() { got = append(got, "a") })
		s.Request("b", func() { got = append(got, "b") })
		s.Request("c", func() { got = append(got, "c") })
		assert.Equal(t, []string{"a"}, got)

		clk.Advance(200 * time.Millisecond)
		assert.Equal(t, []string{"a", "b"}, got)

		clk.Advance(200 * time.Millisecond)
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("pending requests with the same id are coalesced", func(t *testing.T) {
		clk := clocktest.New()
		s := NewScheduler(clk, 100*time.Millisecond)

		var got []string
		s.Request("first", func() { got = append(got, "first") })
		s.Request("pos", func() { got = append(got, "pos:1") })
		s.Request("state", func() { got = append(got, "state") })
		s.Request("pos", func() { got = append(got, "pos:2") })
		assert.Equal(t, 2, s.Len())

		clk.Advance(time.Second)
		assert.Equal(t, []string{"first", "state", "pos:2"}, got)
	})

	t.Run("slot becomes available after an idle interval", func(t *testing.T) {
		clk := clocktest.New()
		s := NewScheduler(clk, 100*time.Millisecond)

		n := 0
		s.Request("a", func() { n++ })
		clk.Advance(150 * time.Millisecond)
		s.Request("a", func() { n++ })

		assert.Equal(t, 2, n)
	})

	t.Run("zero interval grants everything immediately", func(t *testing.T) {
		clk := clocktest.New()
		s := NewScheduler(clk, 0)

		n := 0
		for i := 0; i < 5; i++ {
			s.Request("a", func() { n++ })
		}

		assert.Equal(t, 5, n)
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, 0, clk.Pending())
	})
}
