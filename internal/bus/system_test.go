package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemStartStopJoinsAllTerminals(t *testing.T) {
	sys := NewSystem([]uint8{0, 1}, nil, "run-test")
	bc := NewDevice(0, ModeBC, 0, NewLog())
	rt := NewDevice(1, ModeRT, 0, NewLog())
	sys.AddTerminal(bc, NewFighterSchedulerWithSeeds([]Event{
		{Source: AddrBusControl, Destination: 1, Priority: VeryHigh, Repeating: true, WordCount: 2},
	}))
	sys.AddTerminal(rt, DefaultHandler{})

	sys.Start()
	time.Sleep(50 * time.Millisecond)
	sys.Stop()

	merged := sys.MergedLog()
	require.NotEmpty(t, merged)

	sawCommand := false
	for _, e := range merged {
		if e.Kind == EventCommandReceive && e.Address == 1 {
			sawCommand = true
		}
	}
	assert.True(t, sawCommand, "expected the RT to have received at least one command")
}

func TestSystemDispatchRoutesByWordKind(t *testing.T) {
	sys := NewSystem([]uint8{5}, nil, "run-test")
	d := NewDevice(5, ModeRT, 0, NewLog())
	sys.AddTerminal(d, DefaultHandler{})
	tm := sys.terminals[0]

	sys.dispatch(tm, NewCommandWord(5, 1, Receive))
	assert.Equal(t, StateAwtData, d.State())

	sys.dispatch(tm, NewDataWord(9))
	assert.Equal(t, StateIdle, d.State())
}

func TestSystemBMDispatchLogsWordReceived(t *testing.T) {
	sys := NewSystem([]uint8{1}, nil, "run-test")
	d := NewDevice(1, ModeBM, 0, NewLog())
	sys.AddTerminal(d, BMHandler{})
	tm := sys.terminals[0]

	sys.dispatch(tm, NewDataWord(3))

	entries := d.Log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EventWordReceived, entries[0].Kind)
}
