package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_SetPublishesChange(t *testing.T) {
	src := NewSource(DefaultRegistry(), 4)
	require.NoError(t, src.Set(PowerSource, "battery"))

	ev := <-src.Events()
	assert.Equal(t, Changed{Name: PowerSource, Value: "battery"}, ev)

	v, ok := src.Snapshot().Get(PowerSource)
	assert.True(t, ok)
	assert.Equal(t, "battery", v)
}

func TestSource_UnchangedValueIsSilent(t *testing.T) {
	src := NewSource(DefaultRegistry(), 4)
	require.NoError(t, src.Set(LidState, "open"))
	<-src.Events()
	require.NoError(t, src.Set(LidState, "open"))

	select {
	case ev := <-src.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestSource_SnapshotsAreImmutable(t *testing.T) {
	src := NewSource(DefaultRegistry(), 4)
	require.NoError(t, src.Set(PowerSource, "ac"))
	before := src.Snapshot()

	require.NoError(t, src.Set(PowerSource, "battery"))
	require.NoError(t, src.Clear(PowerSource))

	v, _ := before.Get(PowerSource)
	assert.Equal(t, "ac", v)
	_, ok := src.Snapshot().Get(PowerSource)
	assert.False(t, ok)

	vals := before.Values()
	vals[PowerSource] = "tampered"
	v, _ = before.Get(PowerSource)
	assert.Equal(t, "ac", v)
}

func TestSource_RejectsInvalid(t *testing.T) {
	src := NewSource(DefaultRegistry(), 1)
	assert.ErrorIs(t, src.Set("nope", "x"), ErrUnknownParameter)
	assert.ErrorIs(t, src.Set(BatteryLevel, "-3"), ErrInvalidValue)
	assert.ErrorIs(t, src.Clear("nope"), ErrUnknownParameter)
	assert.Equal(t, 0, src.Snapshot().Len())
}

func TestSource_FullBufferCoalesces(t *testing.T) {
	src := NewSource(DefaultRegistry(), 1)
	require.NoError(t, src.Set(BatteryLevel, "10"))
	require.NoError(t, src.Set(BatteryLevel, "11"))

	ev := <-src.Events()
	assert.Equal(t, "10", ev.Value)
	v, _ := src.Snapshot().Get(BatteryLevel)
	assert.Equal(t, "11", v)
}
