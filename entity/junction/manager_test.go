package junction_test

import (
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/emergency"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/entitytest"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

func crossroad(id, upstream string) input.Junction {
	return input.Junction{
		ID: id,
		Approaches: []input.Approach{
			{Name: "north", Direction: "southbound"},
			{Name: "south", Direction: "northbound"},
			{Name: "east", Direction: "westbound"},
			{Name: "west", Direction: "eastbound", Upstream: upstream},
		},
		Phases: []input.Phase{
			{Name: "NS", Approaches: []string{"north", "south"}},
			{Name: "EW", Approaches: []string{"east", "west"}},
		},
		MinGreen: input.DefaultMinGreen,
		MaxGreen: input.DefaultMaxGreen,
		Yellow:   input.DefaultYellow,
	}
}

func samples() map[string]timing.Sample {
	return map[string]timing.Sample{
		"north": {Flow: lo.ToPtr(800.)},
		"south": {Flow: lo.ToPtr(600.)},
		"east":  {Flow: lo.ToPtr(900.)},
		"west":  {Flow: lo.ToPtr(700.)},
	}
}

func setup(t *testing.T) (*entitytest.Context, *junction.JunctionManager, *emergency.Controller) {
	return setupWith(t, crossroad("J0", ""), crossroad("J1", "J0"))
}

func setupWith(t *testing.T, junctions ...input.Junction) (*entitytest.Context, *junction.JunctionManager, *emergency.Controller) {
	ctx, err := entitytest.NewContext(config.Config{
		Control: config.Control{
			Step:      config.ControlStep{Total: 1000, Interval: 1},
			StartHour: 12,
		},
	})
	require.NoError(t, err)
	m := junction.NewManager(ctx)
	m.Init(&input.Network{Junctions: junctions})
	ctx.Junctions = m
	c := emergency.NewController(ctx)
	ctx.Emergencies = c
	src := ctx.Src.(*entitytest.StaticSource)
	for _, j := range junctions {
		src.Set(j.ID, samples())
	}
	return ctx, m, c
}

func step(ctx *entitytest.Context, m *junction.JunctionManager, c *emergency.Controller) {
	ctx.Clk.Tick()
	m.SetReleases(c.Prepare(ctx.Clk.T))
	m.Prepare()
	m.Update()
}

func TestUpdateEmitsNormalSchedule(t *testing.T) {
	ctx, m, c := setup(t)
	step(ctx, m, c)

	sink := ctx.Snk.(*entitytest.RecordingSink)
	s, ok := sink.Last("J0")
	require.True(t, ok)
	assert.Equal(t, timing.ModeNormal, s.Mode)
	assert.Equal(t, 120, s.CycleTime)
	assert.Equal(t, 40, s.Phases["north"].Green)
	assert.Equal(t, 45, s.Phases["east"].Green)
	assert.Equal(t, ctx.Clk.T, s.IssuedAt)
	assert.NoError(t, s.Validate(lo.ToPtr(m.Junctions()[0].Bounds())))
	assert.Len(t, sink.Applied(), 2)

	j := m.Get("J0")
	normal, ok := j.NormalSchedule()
	require.True(t, ok)
	current, ok := j.CurrentSchedule()
	require.True(t, ok)
	assert.Equal(t, normal.Phases, current.Phases)
	assert.Len(t, m.Junctions()[0].AdaptiveResults(), 4)
}

func TestPrepareReusesLastSnapshot(t *testing.T) {
	ctx, m, c := setup(t)
	step(ctx, m, c)

	src := ctx.Src.(*entitytest.StaticSource)
	src.Fail("J0", errors.New("timeout"))
	step(ctx, m, c)
	s, ok := ctx.Snk.(*entitytest.RecordingSink).Last("J0")
	require.True(t, ok)
	// 沿用上一次测量，周期仍为120；若使用缺省流量则为60
	assert.Equal(t, 120, s.CycleTime)
}

func TestFallbackFlowsWithoutSnapshot(t *testing.T) {
	ctx, m, c := setup(t)
	ctx.Src.(*entitytest.StaticSource).Fail("J1", errors.New("unreachable"))
	step(ctx, m, c)
	s, ok := ctx.Snk.(*entitytest.RecordingSink).Last("J1")
	require.True(t, ok)
	// 每个进口道取0.3倍饱和流量：Y=0.6，C=(18+5)/0.4=57.5，截断到60
	assert.Equal(t, 60, s.CycleTime)
}

func TestEmergencyOverrideAndRelease(t *testing.T) {
	ctx, m, c := setup(t)
	step(ctx, m, c)

	v, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0", "J1"}, Duration: 60})
	require.NoError(t, err)
	step(ctx, m, c)

	sink := ctx.Snk.(*entitytest.RecordingSink)
	for _, id := range []string{"J0", "J1"} {
		s, ok := sink.Last(id)
		require.True(t, ok)
		assert.Equal(t, timing.ModeEmergency, s.Mode, id)
		assert.Equal(t, v.ID, s.OverrideID, id)
		assert.Equal(t, 63, s.CycleTime, id)
		assert.NoError(t, s.Validate(nil), id)

		// 抢占期间正常配时继续更新
		normal, ok := m.Get(id).NormalSchedule()
		require.True(t, ok)
		assert.Equal(t, timing.ModeNormal, normal.Mode)
	}
	// J0无方向与上游信息，取第一个相位；J1按上游J0匹配west进口道
	j0, _ := sink.Last("J0")
	assert.Equal(t, timing.PhaseTiming{Green: 60, Yellow: 3, Red: 0}, j0.Phases["north"])
	assert.Equal(t, timing.PhaseTiming{Green: 0, Yellow: 3, Red: 60}, j0.Phases["east"])
	j1, _ := sink.Last("J1")
	assert.Equal(t, timing.PhaseTiming{Green: 60, Yellow: 3, Red: 0}, j1.Phases["west"])
	assert.Equal(t, timing.PhaseTiming{Green: 0, Yellow: 3, Red: 60}, j1.Phases["south"])

	for range 59 {
		step(ctx, m, c)
	}
	s, _ := sink.Last("J0")
	assert.Equal(t, timing.ModeEmergency, s.Mode)

	step(ctx, m, c)
	for _, id := range []string{"J0", "J1"} {
		s, ok := sink.Last(id)
		require.True(t, ok)
		assert.Equal(t, timing.ModeNormal, s.Mode, id)
		assert.Empty(t, s.OverrideID, id)
		assert.Equal(t, 120, s.CycleTime, id)
	}
	got, ok := c.Get(v.ID)
	require.True(t, ok)
	assert.Equal(t, emergency.StatusCompleted.String(), got.Status)
}

func TestEmergencyApproaches(t *testing.T) {
	_, m, _ := setup(t)
	j := m.Get("J1")
	assert.Equal(t, []string{"east", "west"}, j.EmergencyApproaches("EastBound", ""))
	assert.Equal(t, []string{"north", "south"}, j.EmergencyApproaches("northbound", "J0"))
	assert.Equal(t, []string{"east", "west"}, j.EmergencyApproaches("", "J0"))
	assert.Equal(t, []string{"north", "south"}, j.EmergencyApproaches("", ""))
	assert.Equal(t, []string{"north", "south"}, j.EmergencyApproaches("up", "J9"))
}

func TestGetOrError(t *testing.T) {
	_, m, _ := setup(t)
	_, err := m.GetOrError("J9")
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get("J9") })
}

// tightJunction 最小绿灯接近周期下限，低流量时周期截断到60，两个相位放不下58秒绿灯
func tightJunction() input.Junction {
	j := crossroad("J1", "J0")
	j.MinGreen = 58
	return j
}

func lowFlows() map[string]timing.Sample {
	return map[string]timing.Sample{
		"north": {Flow: lo.ToPtr(100.)},
		"south": {Flow: lo.ToPtr(100.)},
		"east":  {Flow: lo.ToPtr(100.)},
		"west":  {Flow: lo.ToPtr(100.)},
	}
}

func TestOverrideEmittedWhenPlanFails(t *testing.T) {
	ctx, m, c := setupWith(t, crossroad("J0", ""), tightJunction())
	ctx.Src.(*entitytest.StaticSource).Fail("J1", errors.New("unreachable"))
	sink := ctx.Snk.(*entitytest.RecordingSink)

	step(ctx, m, c)
	_, ok := sink.Last("J1")
	assert.False(t, ok)
	_, ok = m.Get("J1").NormalSchedule()
	assert.False(t, ok)

	v, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0", "J1"}, Duration: 10})
	require.NoError(t, err)
	step(ctx, m, c)
	for _, id := range []string{"J0", "J1"} {
		s, ok := sink.Last(id)
		require.True(t, ok, id)
		assert.Equal(t, timing.ModeEmergency, s.Mode, id)
		assert.Equal(t, v.ID, s.OverrideID, id)
		assert.NoError(t, s.Validate(nil), id)
	}
	j1, _ := sink.Last("J1")
	assert.Equal(t, 0, j1.Phases["north"].Green)
	assert.Equal(t, 0, j1.Phases["south"].Green)
	assert.Equal(t, 10, j1.Phases["west"].Green)

	for range 9 {
		step(ctx, m, c)
	}
	j1, _ = sink.Last("J1")
	assert.Equal(t, timing.ModeEmergency, j1.Mode)

	// 释放时既无抢占前配时也无正常配时，下发最小绿灯定时方案
	step(ctx, m, c)
	j1, ok = sink.Last("J1")
	require.True(t, ok)
	assert.Equal(t, timing.ModeNormal, j1.Mode)
	assert.Empty(t, j1.OverrideID)
	b := m.Get("J1").Bounds()
	assert.Equal(t, 2*(58+b.Yellow), j1.CycleTime)
	assert.Equal(t, timing.PhaseTiming{Green: 58, Yellow: b.Yellow, Red: 58 + b.Yellow}, j1.Phases["east"])
	assert.NoError(t, j1.Validate(&b))
	current, ok := m.Get("J1").CurrentSchedule()
	require.True(t, ok)
	assert.Equal(t, timing.ModeNormal, current.Mode)
	assert.Equal(t, ctx.Clk.T, j1.IssuedAt)
}

func TestReleaseRestoresScheduleWhenPlanFails(t *testing.T) {
	ctx, m, c := setupWith(t, crossroad("J0", ""), tightJunction())
	sink := ctx.Snk.(*entitytest.RecordingSink)
	step(ctx, m, c)
	before, ok := sink.Last("J1")
	require.True(t, ok)
	assert.Equal(t, 120, before.CycleTime)

	_, err := c.Submit(emergency.Request{Type: "medical", Route: []string{"J0", "J1"}, Duration: 10})
	require.NoError(t, err)
	ctx.Src.(*entitytest.StaticSource).Set("J1", lowFlows())
	for range 10 {
		step(ctx, m, c)
		s, _ := sink.Last("J1")
		assert.Equal(t, timing.ModeEmergency, s.Mode)
	}

	step(ctx, m, c)
	s, ok := sink.Last("J1")
	require.True(t, ok)
	assert.Equal(t, timing.ModeNormal, s.Mode)
	assert.Empty(t, s.OverrideID)
	assert.Equal(t, before.Phases, s.Phases)
	assert.Equal(t, 120, s.CycleTime)

	// 之后的步仍计算失败且未释放，跳过下发
	n := len(sink.Applied())
	step(ctx, m, c)
	assert.Len(t, sink.Applied(), n+1)
	s, _ = sink.Last("J1")
	assert.Equal(t, ctx.Clk.T-1, s.IssuedAt)
}
