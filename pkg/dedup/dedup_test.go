package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeenReportsDuplicates(t *testing.T) {
	d := New(time.Minute, 100)

	require.False(t, d.Seen("msg-1"))
	require.True(t, d.Seen("msg-1"))
	require.False(t, d.Seen("msg-2"))
	require.Equal(t, 2, d.Len())
}

func TestEmptyIDNeverDuplicate(t *testing.T) {
	d := New(time.Minute, 100)

	require.False(t, d.Seen(""))
	require.False(t, d.Seen(""))
	require.Equal(t, 0, d.Len())
}

func TestForgetAllowsReprocessing(t *testing.T) {
	d := New(time.Minute, 100)

	require.False(t, d.Seen("msg-1"))
	d.Forget("msg-1")
	require.False(t, d.Seen("msg-1"))
}

func TestExpiredEntryNotDuplicate(t *testing.T) {
	d := New(time.Nanosecond, 100)

	require.False(t, d.Seen("msg-1"))
	time.Sleep(time.Millisecond)
	require.False(t, d.Seen("msg-1"))
}

func TestSweepEvictsExpiredAtCap(t *testing.T) {
	d := New(time.Nanosecond, 10)

	for i := 0; i < 50; i++ {
		d.Seen(fmt.Sprintf("msg-%d", i))
		time.Sleep(time.Microsecond)
	}
	// everything but the freshest entries has expired and been swept
	require.LessOrEqual(t, d.Len(), 11)
}
