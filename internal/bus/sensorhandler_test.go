package bus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed1553/internal/trace"
)

func TestSensorHandlerSplitsColumnAcrossTwoDataWords(t *testing.T) {
	csv := "time_ms,altitude,heading\n0,1.5,2.5\n"
	src, err := trace.Load(strings.NewReader(csv))
	require.NoError(t, err)

	h := NewSensorHandler(src, []string{"altitude", "heading"})
	d := NewDevice(1, ModeRT, 0, NewLog())

	low, high := trace.SplitFloat32(1.5)
	assert.Equal(t, NewDataWord(low), h.OnDataWrite(d, 0))
	assert.Equal(t, NewDataWord(high), h.OnDataWrite(d, 1))

	lowH, highH := trace.SplitFloat32(2.5)
	assert.Equal(t, NewDataWord(lowH), h.OnDataWrite(d, 2))
	assert.Equal(t, NewDataWord(highH), h.OnDataWrite(d, 3))
}

func TestSensorHandlerAdvancesOneRecordPerTransmit(t *testing.T) {
	csv := "time_ms,altitude\n0,1.0\n10,2.0\n"
	src, err := trace.Load(strings.NewReader(csv))
	require.NoError(t, err)

	h := NewSensorHandler(src, []string{"altitude"})
	d := NewDevice(1, ModeRT, 0, NewLog())

	low1, high1 := trace.SplitFloat32(1.0)
	assert.Equal(t, NewDataWord(low1), h.OnDataWrite(d, 0))
	assert.Equal(t, NewDataWord(high1), h.OnDataWrite(d, 1))

	low2, high2 := trace.SplitFloat32(2.0)
	assert.Equal(t, NewDataWord(low2), h.OnDataWrite(d, 0))
	assert.Equal(t, NewDataWord(high2), h.OnDataWrite(d, 1))
}

func TestSensorHandlerFallsBackPastTraceColumns(t *testing.T) {
	csv := "time_ms,altitude\n0,1.0\n"
	src, err := trace.Load(strings.NewReader(csv))
	require.NoError(t, err)

	h := NewSensorHandler(src, []string{"altitude"})
	d := NewDevice(1, ModeRT, 0, NewLog())

	h.OnDataWrite(d, 0)
	h.OnDataWrite(d, 1)
	assert.Equal(t, DefaultHandler{}.OnDataWrite(d, 2), h.OnDataWrite(d, 2))
}

func TestSensorHandlerLoopsTraceOnExhaustion(t *testing.T) {
	csv := "time_ms,altitude\n0,1.0\n"
	src, err := trace.Load(strings.NewReader(csv))
	require.NoError(t, err)

	h := NewSensorHandler(src, []string{"altitude"})
	d := NewDevice(1, ModeRT, 0, NewLog())

	low, high := trace.SplitFloat32(1.0)
	assert.Equal(t, NewDataWord(low), h.OnDataWrite(d, 0))
	assert.Equal(t, NewDataWord(high), h.OnDataWrite(d, 1))

	// Trace exhausted: a second transmit reloops to the first record
	// instead of falling back to the placeholder pattern.
	assert.Equal(t, NewDataWord(low), h.OnDataWrite(d, 0))
	assert.Equal(t, NewDataWord(high), h.OnDataWrite(d, 1))
}
