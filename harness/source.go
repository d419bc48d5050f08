package harness

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ben-mays/kitchen-ledger/kitchen"
)

// OrderSource produces the order stream, pull-based. Next returns false when
// the stream is exhausted. Implementations may block to throttle; the
// harness's own rate limiter still applies.
type OrderSource interface {
	Next() (kitchen.Order, bool)
}

// Submitter accepts the final ledger snapshot.
type Submitter interface {
	Submit(actions []kitchen.Action) error
}

// StaticSource is the reference OrderSource: a finite in-memory list.
type StaticSource struct {
	mu     sync.Mutex
	orders []kitchen.Order
	next   int
}

func NewStaticSource(orders []kitchen.Order) *StaticSource {
	return &StaticSource{orders: orders}
}

func (s *StaticSource) Next() (kitchen.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.orders) {
		return kitchen.Order{}, false
	}
	o := s.orders[s.next]
	s.next++
	return o, true
}

// LogSubmitter is the offline Submitter: it records the submission in the log
// and always succeeds. Used when no challenge server is configured.
type LogSubmitter struct {
	Log *zap.SugaredLogger
}

func (s LogSubmitter) Submit(actions []kitchen.Action) error {
	s.Log.Infow("ledger complete, no submit endpoint configured", "actions", len(actions))
	return nil
}
