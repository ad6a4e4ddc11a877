package calibrator

import (
	"testing"
	"time"

	"github.com/jkaflik/shade2mqtt/internal/clock/clocktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	t.Run("expected 5s over actual 4s is 1.25", func(t *testing.T) {
		r, ok := Ratio(5*time.Second, 4*time.Second)
		require.True(t, ok)
		assert.InDelta(t, 1.25, r, 1e-9)
	})

	t.Run("degenerate measurements are refused", func(t *testing.T) {
		_, ok := Ratio(0, time.Second)
		assert.False(t, ok)
		_, ok = Ratio(time.Second, 0)
		assert.False(t, ok)
	})
}

func TestScale(t *testing.T) {
	assert.Equal(t, 125*time.Millisecond, Scale(100*time.Millisecond, 1.25))
	assert.Equal(t, 100*time.Millisecond, Scale(100*time.Millisecond, 1))
	assert.Equal(t, time.Millisecond, Scale(time.Millisecond, 0.01))
}

func TestCalibrator(t *testing.T) {
	t.Run("empty window means no correction", func(t *testing.T) {
		c := New(clocktest.New(), 10*time.Second, 3, false)

		assert.Equal(t, 1.0, c.Latest())
		assert.Equal(t, 1.0, c.Average())
		assert.Equal(t, 100*time.Millisecond, c.Adjust(100*time.Millisecond))
	})

	t.Run("half travel in 4s of a 10s shade yields 1.25", func(t *testing.T) {
		clk := clocktest.New()
		c := New(clk, 10*time.Second, 3, false)

		c.ReportStart(100)
		clk.Advance(4 * time.Second)
		r, ok := c.ReportEnd(50)

		require.True(t, ok)
		assert.InDelta(t, 1.25, r, 1e-9)
		assert.Equal(t, 125*time.Millisecond, c.Adjust(100*time.Millisecond))
	})

	t.Run("window keeps only the most recent samples", func(t *testing.T) {
		clk := clocktest.New()
		c := New(clk, 10*time.Second, 2, true)

		for _, actual := range []time.Duration{10 * time.Second, 5 * time.Second, 20 * time.Second} {
			c.ReportStart(0)
			clk.Advance(actual)
			c.ReportEnd(100)
		}

		assert.Equal(t, 2, c.Samples())
		assert.InDelta(t, 0.5, c.Latest(), 1e-9)
		assert.InDelta(t, 1.25, c.Average(), 1e-9)
		assert.Equal(t, 125*time.Millisecond, c.Adjust(100*time.Millisecond))
	})

	t.Run("zero distance is not sampled", func(t *testing.T) {
		clk := clocktest.New()
		c := New(clk, 10*time.Second, 2, false)

		c.ReportStart(40)
		clk.Advance(time.Second)
		_, ok := c.ReportEnd(40)

		assert.False(t, ok)
		assert.Equal(t, 0, c.Samples())
	})

	t.Run("end without start is ignored", func(t *testing.T) {
		c := New(clocktest.New(), 10*time.Second, 2, false)
		_, ok := c.ReportEnd(10)
		assert.False(t, ok)
	})
}
