package shade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorAdd(t *testing.T) {
	t.Run("second group channel is rejected", func(t *testing.T) {
		h := newHarness(0)
		h.add(t, groupConfig())

		cfg := groupConfig()
		cfg.ID = "other"
		err := h.coord.Add(NewChannel(cfg, h.svc))
		assert.ErrorIs(t, err, ErrSecondGroup)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		h := newHarness(0)
		h.add(t, memberConfig("a", 1))

		err := h.coord.Add(NewChannel(memberConfig("a", 2), h.svc))
		assert.ErrorIs(t, err, ErrDuplicateChannel)
	})

	t.Run("channels resolve by id in registration order", func(t *testing.T) {
		h := newHarness(0)
		a := h.add(t, memberConfig("a", 1))
		g := h.add(t, groupConfig())
		b := h.add(t, memberConfig("b", 2))

		found, ok := h.coord.Channel("b")
		require.True(t, ok)
		assert.Same(t, b, found)

		group, ok := h.coord.Group()
		require.True(t, ok)
		assert.Same(t, g, group)

		assert.Equal(t, []*Channel{a, g, b}, h.coord.Channels())
		assert.Equal(t, []*Channel{a, b}, h.coord.Members())
	})
}

func TestCoordinatorMirroredPosition(t *testing.T) {
	t.Run("average of member positions is floored", func(t *testing.T) {
		h := newHarness(0)
		h.add(t, groupConfig())
		h.add(t, memberConfig("a", 1)).Restore(20)
		h.add(t, memberConfig("b", 2)).Restore(60)

		assert.Equal(t, 40, h.coord.MirroredPosition())

		h.add(t, memberConfig("c", 3)).Restore(1)
		assert.Equal(t, 27, h.coord.MirroredPosition())
	})

	t.Run("fewer than two members falls back", func(t *testing.T) {
		h := newHarness(0)
		h.add(t, groupConfig())
		assert.Equal(t, FallbackGroupPosition, h.coord.MirroredPosition())

		h.add(t, memberConfig("a", 1)).Restore(10)
		assert.Equal(t, FallbackGroupPosition, h.coord.MirroredPosition())
	})
}

func TestCoordinatorMemberTargetChanged(t *testing.T) {
	t.Run("idle group mirrors members without transmitting", func(t *testing.T) {
		h := newHarness(0)
		g := h.add(t, groupConfig())
		h.add(t, memberConfig("a", 1)).Restore(20)
		h.add(t, memberConfig("b", 2)).Restore(60)

		h.coord.MemberTargetChanged()

		assert.Equal(t, 40, g.Position())
		assert.Equal(t, 40, g.Target())
		assert.Equal(t, Stopped, g.State())
		assert.Empty(t, h.link.lines)
	})

	t.Run("group follows a member once it stops", func(t *testing.T) {
		h := newHarness(0)
		g := h.add(t, groupConfig())
		a := h.add(t, memberConfig("a", 1))
		h.add(t, memberConfig("b", 2))

		require.NoError(t, a.SetTarget(0))
		h.clk.Advance(0)
		assert.Equal(t, 100, g.Position())

		h.clk.Advance(10 * time.Second)
		assert.Equal(t, 0, a.Position())
		assert.Equal(t, 50, g.Position())
		assert.Equal(t, []string{"close-1"}, h.link.lines)
	})

	t.Run("mirrored group never transmits nor ticks", func(t *testing.T) {
		h := newHarness(0)
		g := h.add(t, groupConfig())
		a := h.add(t, memberConfig("a", 1))
		h.add(t, memberConfig("b", 2)).Restore(40)

		var states []int
		g.OnUpdate(func(c Characteristic, value int) {
			if c == PositionState {
				states = append(states, value)
			}
		})

		require.NoError(t, a.SetTarget(0))
		for i := 0; i < 100; i++ {
			h.clk.Advance(100 * time.Millisecond)
			require.Nil(t, g.tickTimer)
			require.Equal(t, Stopped, g.State())
		}

		assert.Equal(t, 20, g.Position())
		assert.Equal(t, 20, g.Target())
		assert.Empty(t, states)
		assert.Equal(t, []string{"close-1"}, h.link.lines)
	})

	t.Run("without a group nothing happens", func(t *testing.T) {
		h := newHarness(0)
		h.add(t, memberConfig("a", 1))

		assert.NotPanics(t, h.coord.MemberTargetChanged)
		assert.False(t, h.coord.GroupStopped())
	})
}

func TestGroupFullTravel(t *testing.T) {
	h := newHarness(0)
	g := h.add(t, groupConfig())
	a := h.add(t, memberConfig("a", 1))
	b := h.add(t, memberConfig("b", 2))

	require.NoError(t, g.SetTarget(0))
	h.clk.Advance(0)

	t.Run("group transmits and members follow silently", func(t *testing.T) {
		assert.Equal(t, []string{"close-0"}, h.link.lines)
		assert.Equal(t, Closing, g.State())
		assert.False(t, g.Silent())
		for _, m := range []*Channel{a, b} {
			assert.Equal(t, Closing, m.State())
			assert.True(t, m.Silent())
			assert.Equal(t, 0, m.Target())
		}
	})

	t.Run("everyone arrives without further codes", func(t *testing.T) {
		h.clk.Advance(10 * time.Second)

		for _, c := range []*Channel{g, a, b} {
			assert.Equal(t, 0, c.Position(), c.Name())
			assert.Equal(t, Stopped, c.State(), c.Name())
			assert.False(t, c.Silent(), c.Name())
		}
		assert.Equal(t, []string{"close-0"}, h.link.lines)
	})
}

func TestGroupSilentMembersStopWithGroup(t *testing.T) {
	h := newHarness(0)
	cfg := groupConfig()
	cfg.MaxTravelTime = 5 * time.Second
	g := h.add(t, cfg)
	a := h.add(t, memberConfig("a", 1))
	b := h.add(t, memberConfig("b", 2))

	require.NoError(t, g.SetTarget(0))
	h.clk.Advance(5 * time.Second)

	assert.Equal(t, 0, g.Position())
	assert.Equal(t, Stopped, g.State())
	assert.Equal(t, Closing, a.State())

	h.clk.Advance(100 * time.Millisecond)
	for _, m := range []*Channel{a, b} {
		assert.Equal(t, 49, m.Position(), m.Name())
		assert.Equal(t, Stopped, m.State(), m.Name())
		assertTickInvariant(t, m)
	}
	assert.Equal(t, 49, g.Position(), "group mirrors the members once idle")
	assert.Equal(t, []string{"close-0"}, h.link.lines, "silent members never send stop")
}

func TestGroupInteriorTarget(t *testing.T) {
	h := newHarness(0)
	g := h.add(t, groupConfig())
	a := h.add(t, memberConfig("a", 1))
	b := h.add(t, memberConfig("b", 2))

	require.NoError(t, g.SetTarget(50))
	h.clk.Advance(0)

	t.Run("members transmit while the group runs silently", func(t *testing.T) {
		assert.Equal(t, []string{"close-1"}, h.link.lines)
		assert.True(t, g.Silent())
		assert.Equal(t, Closing, g.State())
		assert.Equal(t, Closing, a.State())
		assert.True(t, b.Busy())
		assert.False(t, a.Silent())
	})

	t.Run("members stop individually and the group settles", func(t *testing.T) {
		h.clk.Advance(10 * time.Second)

		assert.Equal(t, []string{"close-1", "close-2", "stop-1", "stop-2"}, h.link.lines)
		for _, c := range []*Channel{g, a, b} {
			assert.Equal(t, 50, c.Position(), c.Name())
			assert.Equal(t, Stopped, c.State(), c.Name())
		}
	})
}

func TestGroupSilentRunEndsWhenMembersStop(t *testing.T) {
	h := newHarness(0)
	cfg := groupConfig()
	cfg.MaxTravelTime = 20 * time.Second
	g := h.add(t, cfg)
	h.add(t, memberConfig("a", 1))
	h.add(t, memberConfig("b", 2))

	require.NoError(t, g.SetTarget(50))
	h.clk.Advance(6 * time.Second)

	assert.Equal(t, Stopped, g.State())
	assert.Equal(t, 50, g.Position())
	assert.Equal(t, 50, g.Target())
	assertTickInvariant(t, g)
}

func TestGroupSkipsDisabledMembers(t *testing.T) {
	h := newHarness(0)
	g := h.add(t, groupConfig())
	a := h.add(t, memberConfig("a", 1))
	cfg := memberConfig("b", 2)
	cfg.Enabled = false
	b := h.add(t, cfg)

	require.NoError(t, g.SetTarget(0))
	h.clk.Advance(0)

	assert.Equal(t, Closing, a.State())
	assert.Equal(t, Stopped, b.State())
	assert.Equal(t, 100, b.Target())
}

func TestGroupTargetIsNeverAppliedToTheGroup(t *testing.T) {
	h := newHarness(0)
	g := h.add(t, groupConfig())

	g.setGroupTarget(10, false)

	assert.Equal(t, 100, g.Target())
	assert.Empty(t, h.link.lines)
}

func TestCoordinatorStoppedQueries(t *testing.T) {
	h := newHarness(0)
	g := h.add(t, groupConfig())
	a := h.add(t, memberConfig("a", 1))
	h.add(t, memberConfig("b", 2))

	assert.True(t, h.coord.MembersStopped())
	assert.True(t, h.coord.GroupStopped())

	require.NoError(t, a.SetTarget(0))
	h.clk.Advance(0)
	assert.False(t, h.coord.MembersStopped())
	assert.True(t, h.coord.GroupStopped())

	require.NoError(t, g.SetTarget(100))
	h.clk.Advance(0)
	assert.False(t, h.coord.GroupStopped())
}
