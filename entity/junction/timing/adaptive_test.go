package timing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

func newAdjuster() timing.Adjuster {
	return timing.Adjuster{
		Thresholds: timing.DefaultThresholds(),
		BaseGreen:  timing.DefaultBaseGreen,
		Bounds:     defaultBounds,
	}
}

func TestAdjustFactors(t *testing.T) {
	r := newAdjuster().Adjust("J0", timing.Approach{VehicleCount: 25, QueueLength: 8, AvgWaitingTime: 15}, 0)
	assert.Equal(t, "J0", r.JunctionID)
	assert.Equal(t, 1.2, r.DensityFactor)
	assert.InDelta(t, 1.4, r.QueueFactor, 1e-9)
	assert.InDelta(t, 1.15, r.WaitingFactor, 1e-9)
	assert.Equal(t, 57, r.RecommendedGreen)
	assert.Contains(t, r.Reasoning, "Vehicles: 25")
}

func TestAdjustFactorCaps(t *testing.T) {
	r := newAdjuster().Adjust("J0", timing.Approach{VehicleCount: 100, QueueLength: 100, AvgWaitingTime: 1000}, 30)
	assert.Equal(t, 1.5, r.DensityFactor)
	assert.Equal(t, 1.5, r.QueueFactor)
	assert.Equal(t, 1.3, r.WaitingFactor)
	assert.Equal(t, defaultBounds.MaxGreen, r.RecommendedGreen)
}

func TestAdjustLowDensityClampsToMin(t *testing.T) {
	r := newAdjuster().Adjust("J0", timing.Approach{VehicleCount: 0}, 16)
	assert.Equal(t, 0.8, r.DensityFactor)
	assert.Equal(t, defaultBounds.MinGreen, r.RecommendedGreen)
}

func TestDensityFactorMonotonic(t *testing.T) {
	a := newAdjuster()
	prev := a.DensityFactor(0)
	for count := 1; count <= 100; count++ {
		f := a.DensityFactor(count)
		assert.GreaterOrEqual(t, f, prev, "count %d", count)
		prev = f
	}
}

func TestAdjustIsPure(t *testing.T) {
	a := newAdjuster()
	in := timing.Approach{VehicleCount: 18, QueueLength: 3, AvgWaitingTime: 7}
	assert.Equal(t, a.Adjust("J4", in, 25), a.Adjust("J4", in, 25))
}

func TestProfileBoundaries(t *testing.T) {
	assert.NotEqual(t, timing.ProfileAt(9), timing.ProfileAt(10))
	assert.Equal(t, timing.ProfileMorningRush, timing.ProfileAt(9).AdjustmentType)
	assert.Equal(t, timing.ProfileRegular, timing.ProfileAt(10).AdjustmentType)

	cases := map[int]string{
		0:  timing.ProfileNight,
		5:  timing.ProfileNight,
		6:  timing.ProfileRegular,
		7:  timing.ProfileMorningRush,
		16: timing.ProfileRegular,
		17: timing.ProfileEveningRush,
		19: timing.ProfileEveningRush,
		20: timing.ProfileRegular,
		21: timing.ProfileRegular,
		22: timing.ProfileNight,
		23: timing.ProfileNight,
		-1: timing.ProfileNight,
		24: timing.ProfileNight,
	}
	for hour, want := range cases {
		assert.Equal(t, want, timing.ProfileAt(hour).AdjustmentType, "hour %d", hour)
	}
}

func TestProfileApplies(t *testing.T) {
	assert.True(t, timing.ProfileAt(8).Applies("Eastbound"))
	assert.False(t, timing.ProfileAt(8).Applies("northbound"))
	assert.True(t, timing.ProfileAt(23).Applies("northbound"))
}

func newPlanner() timing.Planner {
	return timing.Planner{
		Cycle:    timing.DefaultCycleOptimizer(),
		Bounds:   defaultBounds,
		Adaptive: newAdjuster(),
	}
}

func TestPlanRegularHour(t *testing.T) {
	s, results, err := newPlanner().Plan("J0", crossroad(), crossroadPhases(), 12)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	// 无车辆：密度乘子0.8
	assert.Equal(t, 40, s.Phases["north"].Green)
	assert.Equal(t, 45, s.Phases["east"].Green)
	assert.Equal(t, timing.ProfileRegular, s.Profile)
	assert.Equal(t, timing.ModeNormal, s.Mode)
	assert.NoError(t, s.Validate(&defaultBounds))
}

func TestPlanNightShortensGreen(t *testing.T) {
	s, _, err := newPlanner().Plan("J0", crossroad(), crossroadPhases(), 23)
	require.NoError(t, err)
	assert.Equal(t, 30, s.Phases["north"].Green)
	assert.Equal(t, 35, s.Phases["east"].Green)
	assert.Equal(t, -30, s.CycleExtension)
	assert.NoError(t, s.Validate(&defaultBounds))
}

func TestPlanMorningRushExtendsPriorityDirections(t *testing.T) {
	s, _, err := newPlanner().Plan("J0", crossroad(), crossroadPhases(), 8)
	require.NoError(t, err)
	assert.Equal(t, 40, s.Phases["north"].Green)
	assert.Equal(t, 60, s.Phases["east"].Green)
	assert.Equal(t, []string{"eastbound", "westbound"}, s.PriorityDirections)
	assert.NoError(t, s.Validate(&defaultBounds))
}

func TestPlanKeepsRedNonNegative(t *testing.T) {
	p := newPlanner()
	p.Bounds = timing.Bounds{MinGreen: 15, MaxGreen: 100, Yellow: 4}
	approaches := crossroad()
	for i := range approaches {
		approaches[i].Flow = 100
		approaches[i].VehicleCount = 50
		approaches[i].QueueLength = 50
		approaches[i].AvgWaitingTime = 100
	}
	s, _, err := p.Plan("J0", approaches, nil, 8)
	require.NoError(t, err)
	assert.Equal(t, 60, s.CycleTime)
	// 15*1.5*1.5*1.3 = 43.875
	assert.Equal(t, 43, s.Phases["north"].Green)
	// 优先方向叠加15秒后受周期剩余时间限制
	assert.Equal(t, timing.PhaseTiming{Green: 56, Yellow: 4, Red: 0}, s.Phases["east"])
	assert.NoError(t, s.Validate(&p.Bounds))
}
