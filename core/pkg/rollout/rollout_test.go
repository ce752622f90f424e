package rollout

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/core/pkg/schedule"
	"github.com/open-feature/flagx/core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeMutator applies changes straight to the store, the way the engine does
// minus invalidation and notifications. before, when set, runs once ahead of
// the mutation to stand in for a concurrent writer.
type storeMutator struct {
	state  *store.State
	before func()
}

func (m *storeMutator) MutateFlag(id string, fn func(*model.Flag) bool) (model.Flag, bool, error) {
	if m.before != nil {
		hook := m.before
		m.before = nil
		hook()
	}
	flag, ok := m.state.Get(id)
	if !ok {
		return model.Flag{}, false, model.NewFlagNotFound(id)
	}
	if !fn(&flag) {
		return flag, false, nil
	}
	if _, _, err := m.state.Set(flag); err != nil {
		return model.Flag{}, false, err
	}
	return flag, true, nil
}

type fixture struct {
	state   *store.State
	mutator *storeMutator
	tasks   *schedule.Manual
	clock   *clockwork.FakeClock
	rollup  *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := store.NewFlags(nil)
	tasks := schedule.NewManual()
	clock := clockwork.NewFakeClock()
	mutator := &storeMutator{state: state}
	s := New(state, mutator, tasks, clock, nil, 0)
	return &fixture{state: state, mutator: mutator, tasks: tasks, clock: clock, rollup: s}
}

func gradual(id string, pct, inc, interval int) model.Flag {
	return model.Flag{
		ID:      id,
		Enabled: true,
		Rollout: model.RolloutStrategy{
			Type: model.GradualStrategy,
			Config: model.StrategyConfig{
				Percentage:          pct,
				IncrementPercentage: inc,
				IncrementInterval:   interval,
			},
		},
	}
}

func (f *fixture) add(t *testing.T, flag model.Flag) {
	t.Helper()
	_, _, err := f.state.Set(flag)
	require.NoError(t, err)
}

func (f *fixture) percentage(id string) int {
	flag, _ := f.state.Get(id)
	return flag.Rollout.Config.Percentage
}

func TestStart_ArmsGradualFlagsAndScan(t *testing.T) {
	f := newFixture(t)
	f.add(t, gradual("ramp", 10, 10, 5))
	f.add(t, model.Flag{ID: "plain", Enabled: true, Rollout: model.RolloutStrategy{Type: model.ImmediateStrategy}})

	f.rollup.Start()

	assert.Equal(t, []string{"rollout/ramp", "rollout/schedule-scan"}, f.tasks.Keys())
	d, ok := f.tasks.Interval(Key("ramp"))
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)
	d, _ = f.tasks.Interval(scanKey)
	assert.Equal(t, DefaultScanInterval, d)
}

func TestIncrement_FollowsRampUntilFull(t *testing.T) {
	tests := map[string]struct {
		initial, inc int
		ticks        int
	}{
		"exact steps":     {initial: 10, inc: 30, ticks: 3},
		"overshoot clamp": {initial: 25, inc: 40, ticks: 2},
		"single step":     {initial: 0, inc: 100, ticks: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.add(t, gradual("ramp", tt.initial, tt.inc, 1))
			f.rollup.Start()

			for k := 1; k <= tt.ticks; k++ {
				require.True(t, f.tasks.Fire(Key("ramp")), "tick %d", k)
				want := tt.initial + k*tt.inc
				if want > 100 {
					want = 100
				}
				assert.Equal(t, want, f.percentage("ramp"), "tick %d", k)
			}

			assert.Equal(t, 100, f.percentage("ramp"))
			assert.False(t, f.rollup.Armed("ramp"), "timer must stop at 100")
		})
	}
}

func TestRegister_SkipsFlagsThatCannotGrow(t *testing.T) {
	f := newFixture(t)
	f.rollup.Start()

	f.rollup.Register(gradual("full", 100, 10, 1))
	f.rollup.Register(gradual("no-inc", 10, 0, 1))
	f.rollup.Register(gradual("no-interval", 10, 10, 0))

	assert.Equal(t, []string{"rollout/schedule-scan"}, f.tasks.Keys())
}

func TestRegister_SwitchingStrategyCancels(t *testing.T) {
	f := newFixture(t)
	f.rollup.Start()
	flag := gradual("ramp", 10, 10, 1)
	f.rollup.Register(flag)
	require.True(t, f.rollup.Armed("ramp"))

	flag.Rollout.Type = model.ImmediateStrategy
	f.rollup.Register(flag)

	assert.False(t, f.rollup.Armed("ramp"))
}

func TestCancel_DeletedFlagNeverMutated(t *testing.T) {
	f := newFixture(t)
	f.add(t, gradual("ramp", 10, 10, 1))
	f.rollup.Start()
	require.True(t, f.rollup.Armed("ramp"))

	f.state.Delete("ramp")
	f.rollup.Cancel("ramp")

	assert.False(t, f.tasks.Fire(Key("ramp")))
	_, ok := f.state.Get("ramp")
	assert.False(t, ok)
}

func TestIncrement_FlagGoneBeforeFire(t *testing.T) {
	f := newFixture(t)
	f.add(t, gradual("ramp", 10, 10, 1))
	f.rollup.Start()

	f.state.Delete("ramp")
	assert.True(t, f.tasks.Fire(Key("ramp")))

	assert.False(t, f.rollup.Armed("ramp"))
	_, ok := f.state.Get("ramp")
	assert.False(t, ok)
}

func TestStop_CancelsEverything(t *testing.T) {
	f := newFixture(t)
	f.add(t, gradual("a", 10, 10, 1))
	f.add(t, gradual("b", 20, 10, 1))
	f.rollup.Start()

	f.rollup.Stop()
	assert.Empty(t, f.tasks.Keys())

	f.rollup.Register(gradual("c", 10, 10, 1))
	assert.Empty(t, f.tasks.Keys(), "registration after stop is ignored")
}

func TestScanSchedules(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	f.add(t, model.Flag{ID: "opening", Schedule: &model.Schedule{Start: &past, End: &future}})
	f.add(t, model.Flag{ID: "closing", Enabled: true, Schedule: &model.Schedule{End: &past}})
	f.add(t, model.Flag{ID: "waiting", Schedule: &model.Schedule{Start: &future}})
	f.add(t, model.Flag{ID: "over", Schedule: &model.Schedule{Start: &past, End: &past}})
	f.add(t, model.Flag{
		ID:       "safed",
		Schedule: &model.Schedule{Start: &past},
		Metadata: model.Metadata{SafetyAction: model.RollbackAction},
	})

	f.rollup.ScanSchedules()

	enabled := func(id string) bool {
		flag, _ := f.state.Get(id)
		return flag.Enabled
	}
	assert.True(t, enabled("opening"))
	assert.False(t, enabled("closing"))
	assert.False(t, enabled("waiting"))
	assert.False(t, enabled("over"))
	assert.False(t, enabled("safed"))

	f.clock.Advance(2 * time.Hour)
	f.rollup.ScanSchedules()
	assert.True(t, enabled("waiting"))
	assert.False(t, enabled("opening"))
}

func TestIncrement_RollbackBeforeWriteWins(t *testing.T) {
	f := newFixture(t)
	f.add(t, gradual("ramp", 40, 10, 1))
	f.rollup.Start()

	f.mutator.before = func() {
		_, _, err := f.state.Update("ramp", func(fl *model.Flag) {
			fl.Enabled = false
			fl.Rollout.Config.Percentage = 0
			fl.Metadata.SafetyAction = model.RollbackAction
		})
		require.NoError(t, err)
	}
	require.True(t, f.tasks.Fire(Key("ramp")))

	assert.Equal(t, 0, f.percentage("ramp"))
	assert.False(t, f.rollup.Armed("ramp"))
}

func TestRegister_RefusesSafetyMarkedFlags(t *testing.T) {
	f := newFixture(t)
	f.rollup.Start()

	flag := gradual("ramp", 10, 10, 1)
	flag.Metadata.SafetyAction = model.RollbackAction
	f.rollup.Register(flag)

	assert.False(t, f.rollup.Armed("ramp"))
}

func TestScanSchedules_EndIsExclusive(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	end := now.Add(time.Minute)
	f.add(t, model.Flag{ID: "window", Schedule: &model.Schedule{Start: &now, End: &end}})

	f.rollup.ScanSchedules()
	flag, _ := f.state.Get("window")
	assert.True(t, flag.Enabled, "start is inclusive")

	f.clock.Advance(time.Minute)
	f.rollup.ScanSchedules()
	flag, _ = f.state.Get("window")
	assert.False(t, flag.Enabled, "closed exactly at end")
}
