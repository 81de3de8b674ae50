package transition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lampd/internal/color"
)

type recordingOutput struct {
	writes []color.RGB
	err    error
}

func (o *recordingOutput) Write(c color.RGB) error {
	o.writes = append(o.writes, c)
	return o.err
}

func TestEngineAdvanceWritesOncePerCall(t *testing.T) {
	out := &recordingOutput{}
	e := NewEngine(out, color.Default)

	e.Add(NewCycle(0, time.Second, t0))
	e.Add(NewShift(KindShiftSaturation, 1, -0.5, 100*time.Millisecond, t0))
	e.Add(NewShift(KindShiftValue, 1, -0.5, 100*time.Millisecond, t0))

	require.NoError(t, e.AdvanceAll(t0.Add(10*time.Millisecond)))
	assert.Len(t, out.writes, 1)

	require.NoError(t, e.AdvanceAll(t0.Add(20*time.Millisecond)))
	assert.Len(t, out.writes, 2)

	// idle engine still writes once per tick
	e.ClearAll()
	require.NoError(t, e.AdvanceAll(t0.Add(30*time.Millisecond)))
	assert.Len(t, out.writes, 3)
}

func TestEngineRemovesCompletedShifts(t *testing.T) {
	e := NewEngine(&recordingOutput{}, color.Default)
	e.Add(NewCycle(0, time.Second, t0))
	e.Add(NewShift(KindShiftValue, 1, -1, 100*time.Millisecond, t0))

	require.NoError(t, e.AdvanceAll(t0.Add(50*time.Millisecond)))
	assert.Len(t, e.Active(), 2)
	assert.Equal(t, 2, e.ActiveCount())

	require.NoError(t, e.AdvanceAll(t0.Add(100*time.Millisecond)))
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 1, e.ActiveCount())
	assert.Equal(t, KindCycle, active[0].Kind)
	assert.Equal(t, 0.0, e.Color().Value)
}

func TestEngineStackingCycleAndSaturation(t *testing.T) {
	const period = 4 * time.Second
	e := NewEngine(&recordingOutput{}, color.HSV{Hue: 0, Saturation: 1, Value: 1})
	e.Add(NewCycle(0, period, t0))

	// saturation shift starts one second into the cycle
	shiftStart := t0.Add(time.Second)
	e.Add(NewShift(KindShiftSaturation, 1, -0.6, 200*time.Millisecond, shiftStart))

	require.NoError(t, e.AdvanceAll(shiftStart.Add(100*time.Millisecond)))
	assert.InDelta(t, 99, e.Color().Hue, 1e-9, "cycle keeps rotating hue")
	assert.InDelta(t, 0.7, e.Color().Saturation, 1e-9)

	require.NoError(t, e.AdvanceAll(shiftStart.Add(200*time.Millisecond)))
	assert.InDelta(t, 108, e.Color().Hue, 1e-9)
	assert.InDelta(t, 0.4, e.Color().Saturation, 1e-9)
	assert.True(t, e.Has(KindCycle))
	assert.False(t, e.Has(KindShiftSaturation))

	require.NoError(t, e.AdvanceAll(t0.Add(3*time.Second)))
	assert.InDelta(t, 270, e.Color().Hue, 1e-9)
	assert.InDelta(t, 0.4, e.Color().Saturation, 1e-9, "settled saturation holds")
}

func TestEngineSameChannelLastWins(t *testing.T) {
	e := NewEngine(&recordingOutput{}, color.Default)
	e.Add(NewShift(KindShiftValue, 0, 1, time.Second, t0))
	e.Add(NewShift(KindShiftValue, 0.2, 0, time.Second, t0))

	require.NoError(t, e.AdvanceAll(t0.Add(500*time.Millisecond)))
	assert.Equal(t, 0.2, e.Color().Value)
}

func TestEngineClearAllRestoresPulseSnapshot(t *testing.T) {
	for _, ran := range []time.Duration{0, 130 * time.Millisecond, 1700 * time.Millisecond, 47 * time.Second} {
		t.Run(ran.String(), func(t *testing.T) {
			e := NewEngine(&recordingOutput{}, color.HSV{Hue: 240, Saturation: 0.65, Value: 0.35})
			e.Add(NewPulse(e.Color(), 2*time.Second, t0))

			require.NoError(t, e.AdvanceAll(t0.Add(ran)))
			e.ClearAll()

			assert.Empty(t, e.Active())
			assert.Equal(t, 0.65, e.Color().Saturation)
			assert.Equal(t, 0.35, e.Color().Value)
			assert.Equal(t, 240.0, e.Color().Hue)
		})
	}
}

func TestEngineClearAllWithoutSnapshot(t *testing.T) {
	e := NewEngine(&recordingOutput{}, color.HSV{Hue: 0, Saturation: 1, Value: 1})
	e.Add(NewShift(KindShiftValue, 1, -1, time.Second, t0))
	require.NoError(t, e.AdvanceAll(t0.Add(500*time.Millisecond)))

	e.ClearAll()
	assert.Empty(t, e.Active())
	assert.InDelta(t, 0.5, e.Color().Value, 1e-9, "shift leaves its partial value in place")
}

func TestEngineClearAllOldestSnapshotWins(t *testing.T) {
	e := NewEngine(&recordingOutput{}, color.HSV{Saturation: 0.9, Value: 0.8})
	e.Add(NewPulse(e.Color(), time.Second, t0))
	require.NoError(t, e.AdvanceAll(t0.Add(250*time.Millisecond)))
	e.Add(NewPulse(e.Color(), time.Second, t0))

	e.ClearAll()
	assert.Equal(t, 0.9, e.Color().Saturation)
	assert.Equal(t, 0.8, e.Color().Value)
}

func TestEngineSetDirect(t *testing.T) {
	out := &recordingOutput{}
	e := NewEngine(out, color.Default)
	e.Add(NewCycle(0, time.Second, t0))

	require.NoError(t, e.SetDirect(color.HSV{Hue: 480, Saturation: 1, Value: 1}))
	assert.InDelta(t, 120, e.Color().Hue, 1e-9)
	assert.Len(t, e.Active(), 1, "set direct keeps transitions")
	require.Len(t, out.writes, 1)
	assert.InDelta(t, 1, out.writes[0].G, 1e-9)
}

func TestEngineOutputErrorPropagates(t *testing.T) {
	boom := errors.New("pwm busy")
	out := &recordingOutput{err: boom}
	e := NewEngine(out, color.Default)
	e.Add(NewShift(KindShiftValue, 1, -1, 100*time.Millisecond, t0))

	err := e.AdvanceAll(t0.Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, boom)
	assert.InDelta(t, 0.5, e.Color().Value, 1e-9, "color is updated even when the write fails")

	assert.ErrorIs(t, e.SetDirect(color.Default), boom)
}
