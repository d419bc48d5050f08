package kitchen

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAppendOrder(t *testing.T) {
	l := NewLedger()
	l.Append(Action{Timestamp: 1, OrderID: "a", Kind: ActionPlace, Target: ZoneHeater})
	l.Append(Action{Timestamp: 1, OrderID: "b", Kind: ActionPlace, Target: ZoneShelf})
	l.Append(Action{Timestamp: 2, OrderID: "a", Kind: ActionPickup, Target: ZoneHeater})

	actions := l.Snapshot()
	require.Len(t, actions, 3)
	assert.Equal(t, "a", actions[0].OrderID)
	assert.Equal(t, "b", actions[1].OrderID)
	assert.Equal(t, ActionPickup, actions[2].Kind)
}

func TestLedgerSnapshotIsStableCopy(t *testing.T) {
	l := NewLedger()
	l.Append(Action{Timestamp: 1, OrderID: "a", Kind: ActionPlace, Target: ZoneHeater})

	snap := l.Snapshot()
	snap[0].OrderID = "mutated"
	l.Append(Action{Timestamp: 2, OrderID: "b", Kind: ActionPlace, Target: ZoneShelf})

	assert.Equal(t, "a", l.Snapshot()[0].OrderID)
	assert.Len(t, snap, 1)
}

func TestLedgerConcurrentAppends(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Append(Action{Timestamp: float64(n), OrderID: fmt.Sprintf("o%d", n), Kind: ActionPlace, Target: ZoneShelf})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
}
