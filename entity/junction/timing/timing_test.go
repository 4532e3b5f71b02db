package timing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

func crossroad() []timing.Approach {
	return []timing.Approach{
		{Name: "north", Direction: "southbound", Flow: 800, SaturationFlow: 1800},
		{Name: "south", Direction: "northbound", Flow: 600, SaturationFlow: 1800},
		{Name: "east", Direction: "westbound", Flow: 900, SaturationFlow: 1800},
		{Name: "west", Direction: "eastbound", Flow: 700, SaturationFlow: 1800},
	}
}

func crossroadPhases() []timing.Phase {
	return []timing.Phase{
		{Name: "NS", Approaches: []string{"north", "south"}},
		{Name: "EW", Approaches: []string{"east", "west"}},
	}
}

var defaultBounds = timing.Bounds{MinGreen: 15, MaxGreen: 60, Yellow: 4}

func TestCycleCriticalRatiosBelowOne(t *testing.T) {
	res, err := timing.DefaultCycleOptimizer().Optimize(crossroad(), crossroadPhases())
	require.NoError(t, err)
	assert.InDelta(t, 800./1800, res.CriticalRatios[0], 1e-9)
	assert.InDelta(t, 900./1800, res.CriticalRatios[1], 1e-9)
	assert.Less(t, res.RawY, 1.)
	assert.Equal(t, res.RawY, res.Y)
	assert.Equal(t, 120, res.CycleTime)
}

func TestCycleOversaturatedIsCapped(t *testing.T) {
	res, err := timing.DefaultCycleOptimizer().Optimize(crossroad(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 3000./1800, res.RawY, 1e-9)
	assert.Equal(t, timing.OversaturatedY, res.Y)
	assert.Equal(t, 120, res.CycleTime)
}

func TestCycleLowDemandHitsLowerBound(t *testing.T) {
	approaches := crossroad()
	for i := range approaches {
		approaches[i].Flow = 100
	}
	res, err := timing.DefaultCycleOptimizer().Optimize(approaches, nil)
	require.NoError(t, err)
	assert.Equal(t, timing.DefaultMinCycle, res.CycleTime)
}

func TestCycleAlwaysWithinBounds(t *testing.T) {
	o := timing.DefaultCycleOptimizer()
	for flow := 0.; flow <= 3000; flow += 50 {
		approaches := []timing.Approach{
			{Name: "a", Flow: flow, SaturationFlow: 1800},
			{Name: "b", Flow: flow / 2, SaturationFlow: 1600},
		}
		res, err := o.Optimize(approaches, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.CycleTime, 60)
		assert.LessOrEqual(t, res.CycleTime, 120)
	}
}

func TestCycleRejectsNonPositiveSaturation(t *testing.T) {
	approaches := crossroad()
	approaches[2].SaturationFlow = 0
	_, err := timing.DefaultCycleOptimizer().Optimize(approaches, nil)
	assert.ErrorIs(t, err, timing.ErrInvalidConfiguration)
}

func TestCycleRejectsUnknownPhaseApproach(t *testing.T) {
	phases := []timing.Phase{{Name: "X", Approaches: []string{"nowhere"}}}
	_, err := timing.DefaultCycleOptimizer().Optimize(crossroad(), phases)
	assert.ErrorIs(t, err, timing.ErrInvalidConfiguration)
}

func TestAllocateProportionalToCriticalRatio(t *testing.T) {
	cycle, err := timing.DefaultCycleOptimizer().Optimize(crossroad(), crossroadPhases())
	require.NoError(t, err)
	a := timing.Allocator{LostTime: timing.DefaultLostTime, Bounds: defaultBounds}
	s, err := a.Allocate("J0", crossroad(), crossroadPhases(), cycle)
	require.NoError(t, err)

	assert.Equal(t, timing.PhaseTiming{Green: 51, Yellow: 4, Red: 65}, s.Phases["north"])
	assert.Equal(t, s.Phases["north"], s.Phases["south"])
	assert.Equal(t, timing.PhaseTiming{Green: 57, Yellow: 4, Red: 59}, s.Phases["east"])
	assert.Equal(t, s.Phases["east"], s.Phases["west"])
	assert.NoError(t, s.Validate(&defaultBounds))
}

func TestAllocateClampsGreen(t *testing.T) {
	cycle := timing.CycleResult{CriticalRatios: []float64{0.01, 0.99}, CycleTime: 120}
	a := timing.Allocator{LostTime: 12, Bounds: defaultBounds}
	approaches := []timing.Approach{
		{Name: "minor", SaturationFlow: 1800},
		{Name: "major", SaturationFlow: 1800},
	}
	s, err := a.Allocate("J1", approaches, nil, cycle)
	require.NoError(t, err)
	assert.Equal(t, 15, s.Phases["minor"].Green)
	assert.Equal(t, 60, s.Phases["major"].Green)
	assert.NoError(t, s.Validate(&defaultBounds))
}

func TestAllocateEqualSplitWithoutDemand(t *testing.T) {
	cycle := timing.CycleResult{CriticalRatios: []float64{0, 0}, CycleTime: 60}
	a := timing.Allocator{LostTime: 12, Bounds: defaultBounds}
	approaches := []timing.Approach{{Name: "a", SaturationFlow: 1}, {Name: "b", SaturationFlow: 1}}
	s, err := a.Allocate("J2", approaches, nil, cycle)
	require.NoError(t, err)
	assert.Equal(t, 24, s.Phases["a"].Green)
	assert.Equal(t, 24, s.Phases["b"].Green)
}

func TestAllocateNegativeRemainderIsSurfaced(t *testing.T) {
	cycle := timing.CycleResult{CriticalRatios: []float64{0.5, 0.5}, CycleTime: 60}
	a := timing.Allocator{LostTime: 12, Bounds: timing.Bounds{MinGreen: 58, MaxGreen: 90, Yellow: 4}}
	approaches := []timing.Approach{{Name: "a", SaturationFlow: 1}, {Name: "b", SaturationFlow: 1}}
	_, err := a.Allocate("J3", approaches, nil, cycle)
	assert.ErrorIs(t, err, timing.ErrConfiguration)
}

func TestAllocationInvariantsOverDemandRange(t *testing.T) {
	o := timing.DefaultCycleOptimizer()
	a := timing.Allocator{LostTime: o.LostTime, Bounds: defaultBounds}
	for flow := 0.; flow <= 2000; flow += 100 {
		approaches := crossroad()
		approaches[0].Flow = flow
		cycle, err := o.Optimize(approaches, crossroadPhases())
		require.NoError(t, err)
		s, err := a.Allocate("J0", approaches, crossroadPhases(), cycle)
		require.NoError(t, err)
		for _, pt := range s.Phases {
			assert.GreaterOrEqual(t, pt.Green, defaultBounds.MinGreen)
			assert.LessOrEqual(t, pt.Green, defaultBounds.MaxGreen)
			assert.Equal(t, s.CycleTime, pt.Green+pt.Yellow+pt.Red)
		}
	}
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, defaultBounds.Validate())
	assert.ErrorIs(t, timing.Bounds{MinGreen: 61, MaxGreen: 60}.Validate(), timing.ErrInvalidConfiguration)
	assert.ErrorIs(t, timing.Bounds{MinGreen: 1, MaxGreen: 2, Yellow: -1}.Validate(), timing.ErrInvalidConfiguration)
}

func TestResolveFallbacks(t *testing.T) {
	a := timing.Resolve("north", "southbound", 1800, timing.Sample{}, false)
	assert.InDelta(t, 540, a.Flow, 1e-9)
	assert.Zero(t, a.VehicleCount)

	flow := -3.
	count := 12
	queue := -1
	a = timing.Resolve("north", "southbound", 1800, timing.Sample{Flow: &flow, VehicleCount: &count, QueueLength: &queue}, true)
	assert.InDelta(t, 540, a.Flow, 1e-9)
	assert.Equal(t, 12, a.VehicleCount)
	assert.Zero(t, a.QueueLength)
}
