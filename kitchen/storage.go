package kitchen

import (
	"fmt"
	"sync"

	"go.uber.org/config"
	"go.uber.org/zap"
)

// Config describes the storage topology. Capacities are set at app start from
// the yaml provider and never change.
type Config struct {
	CoolerCapacity int `yaml:"cooler_capacity"`
	HeaterCapacity int `yaml:"heater_capacity"`
	ShelfCapacity  int `yaml:"shelf_capacity"`
}

// DefaultConfig is the standard three-zone kitchen.
func DefaultConfig() Config {
	return Config{
		CoolerCapacity: 6,
		HeaterCapacity: 6,
		ShelfCapacity:  12,
	}
}

// Stats counts placements, moves and terminal outcomes. A copy is returned by StorageManager.Stats.
type Stats struct {
	Placed    int `json:"placed"`
	Moved     int `json:"moved"`
	PickedUp  int `json:"picked_up"`
	Discarded int `json:"discarded"`
}

// OrderView is a read-only copy of a resident order for diagnostics.
type OrderView struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Temp          Temperature `json:"temperature"`
	RemainingLife float64     `json:"remaining_life"`
}

// ZoneView is the diagnostic view of one zone.
type ZoneView struct {
	Zone     ZoneID      `json:"zone"`
	Capacity int         `json:"capacity"`
	Count    int         `json:"count"`
	Orders   []OrderView `json:"orders"`
}

// View is a consistent point-in-time view of all three zones.
type View struct {
	Cooler ZoneView `json:"cooler"`
	Heater ZoneView `json:"heater"`
	Shelf  ZoneView `json:"shelf"`
}

// StorageManager maintains the three bounded zones and the action ledger
// protocol. A single mutex guards all state; every exported operation is
// atomic with respect to every other. Operations never block beyond the brief
// critical section.
type StorageManager struct {
	mu sync.Mutex

	clock  Clock
	ledger *Ledger
	log    *zap.SugaredLogger

	cooler *zone
	heater *zone
	shelf  *zone
	byID   map[string]*Order

	// seen holds every id ever admitted; ids are unique for a whole run,
	// not just while resident.
	seen map[string]struct{}

	lastNow float64
	stats   Stats
}

// NewStorageManager builds a manager over the given topology. The ledger and
// clock are injected so the harness, diagnostics server and tests share them.
func NewStorageManager(cfg Config, clock Clock, ledger *Ledger, log *zap.SugaredLogger) (*StorageManager, error) {
	if cfg.CoolerCapacity <= 0 || cfg.HeaterCapacity <= 0 || cfg.ShelfCapacity <= 0 {
		return nil, fmt.Errorf("kitchen: zone capacities must be positive, got %+v", cfg)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StorageManager{
		clock:  clock,
		ledger: ledger,
		log:    log,
		cooler: newZone(ZoneCooler, cfg.CoolerCapacity),
		heater: newZone(ZoneHeater, cfg.HeaterCapacity),
		shelf:  newZone(ZoneShelf, cfg.ShelfCapacity),
		byID:   make(map[string]*Order),
		seen:   make(map[string]struct{}),
	}, nil
}

// ProvideStorageManager wires the manager from the app config provider under
// the "kitchen" key. Missing keys fall back to the default topology.
func ProvideStorageManager(provider config.Provider, clock Clock, ledger *Ledger, logger *zap.Logger) (*StorageManager, error) {
	cfg := DefaultConfig()
	if err := provider.Get("kitchen").Populate(&cfg); err != nil {
		return nil, err
	}
	return NewStorageManager(cfg, clock, ledger, logger.Sugar())
}

// Ledger exposes the action log for snapshotting and submission.
func (m *StorageManager) Ledger() *Ledger {
	return m.ledger
}

// now reads the clock under the mutex and enforces monotonicity. A regressing
// clock invalidates every freshness computation, so it halts the process.
func (m *StorageManager) now() float64 {
	t := m.clock()
	if t < m.lastNow {
		panic(fmt.Sprintf("kitchen: clock regression %v -> %v", m.lastNow, t))
	}
	m.lastNow = t
	return t
}

func (m *StorageManager) zoneFor(id ZoneID) *zone {
	switch id {
	case ZoneCooler:
		return m.cooler
	case ZoneHeater:
		return m.heater
	default:
		return m.shelf
	}
}

func (m *StorageManager) record(t float64, orderID string, kind ActionKind, target ZoneID, detail string) {
	m.ledger.Append(Action{
		Timestamp: t,
		OrderID:   orderID,
		Kind:      kind,
		Target:    target,
		Detail:    detail,
	})
	m.log.Debugw("action", "t", t, "kind", kind, "order", orderID, "target", target, "detail", detail)
}

// Place admits an order. The policy always succeeds for well-formed input:
// at most one shelf resident is relocated first, then the order goes to its
// ideal zone, else the shelf, discarding a shelf victim when everything is
// full. Malformed input (empty id, unknown
// temperature, non-positive freshness, duplicate id) is rejected with
// ErrInvalidOrder or ErrDuplicateOrder and leaves no ledger trace.
func (m *StorageManager) Place(o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := o.Validate(); err != nil {
		return err
	}
	if _, exists := m.seen[o.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	m.seen[o.ID] = struct{}{}

	t := m.now()
	ord := &Order{
		ID:        o.ID,
		Name:      o.Name,
		Temp:      o.Temp,
		Freshness: o.Freshness,
		PlacedAt:  t,
	}

	// Relocating a shelf resident to its ideal zone slows its decay and can
	// free a shelf slot. Hot and cold admissions always attempt it; room
	// admissions only need it when the shelf is full.
	if ord.Temp != TempRoom || !m.shelf.hasRoom() {
		m.relocateOne(t)
	}

	dest := m.zoneFor(ord.IdealZone())
	if !dest.hasRoom() && dest != m.shelf {
		dest = m.shelf
	}
	if !dest.hasRoom() {
		// Everything is full: evict the shelf resident the kitchen can
		// least save.
		m.discardVictim(t)
	}
	if !dest.hasRoom() {
		// Unreachable while shelf capacity >= 1; anything else is a bug in
		// the placement policy.
		panic(fmt.Sprintf("kitchen: no capacity for order %s after discard", ord.ID))
	}

	ord.StoredAt = t
	dest.insert(ord)
	m.byID[ord.ID] = ord
	m.stats.Placed++
	m.record(t, ord.ID, ActionPlace, dest.id, fmt.Sprintf("stored %s", ord.Name))
	return nil
}

// relocateOne moves at most one hot/cold shelf resident into its ideal zone.
// Candidates are residents whose ideal zone has room; among those the one
// with the least remaining life moves first, recapturing the most lifetime.
// Ties break on the lower order id.
func (m *StorageManager) relocateOne(t float64) {
	var pick *Order
	var pickLife float64
	for _, o := range m.shelf.orders {
		if o.Temp == TempRoom {
			continue
		}
		if !m.zoneFor(o.IdealZone()).hasRoom() {
			continue
		}
		life := o.RemainingLife(t)
		if pick == nil || life < pickLife || (life == pickLife && o.ID < pick.ID) {
			pick, pickLife = o, life
		}
	}
	if pick == nil {
		return
	}

	// Rewrite StoredAt so the remaining life carries over unchanged at the
	// destination's decay rate.
	life := pick.RemainingLife(t)
	m.shelf.remove(pick.ID)
	dest := m.zoneFor(pick.IdealZone())
	dest.insert(pick)
	pick.StoredAt = t - (pick.Freshness-life)/pick.DecayRate()
	m.stats.Moved++
	m.record(t, pick.ID, ActionMove, dest.id, "relocated from shelf")
}

// discardScore ranks shelf residents for eviction; higher scores make better
// victims. Expired orders dominate, then mismatched-temperature residents,
// then whoever has burned the largest share of its budget.
func discardScore(o *Order, t float64) float64 {
	score := 0.0
	if !o.Fresh(t) {
		score += 1000
	}
	if o.Temp != TempRoom {
		score += 500
	}
	score += 100 * o.DecayRate() * (t - o.StoredAt) / o.Freshness
	return score
}

func (m *StorageManager) discardVictim(t float64) {
	var victim *Order
	var victimScore float64
	for _, o := range m.shelf.orders {
		s := discardScore(o, t)
		if victim == nil || s > victimScore || (s == victimScore && o.ID < victim.ID) {
			victim, victimScore = o, s
		}
	}
	if victim == nil {
		return
	}
	m.shelf.remove(victim.ID)
	delete(m.byID, victim.ID)
	m.stats.Discarded++
	m.record(t, victim.ID, ActionDiscard, ZoneShelf, "evicted to make room")
}

// Pickup removes the order for delivery. It returns false when the order is
// unknown, already discarded, or no longer fresh; an expired order is
// discarded on the spot. A pickup arriving after a discard is benign.
func (m *StorageManager) Pickup(id string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.byID[id]
	if !ok {
		return Order{}, false
	}
	t := m.now()
	// Freshness must be judged at the origin zone's decay rate, so read it
	// before remove clears the order's Zone field.
	origin := ord.Zone
	fresh := ord.Fresh(t)
	m.zoneFor(origin).remove(ord.ID)
	delete(m.byID, ord.ID)

	if !fresh {
		m.stats.Discarded++
		m.record(t, ord.ID, ActionDiscard, origin, "expired before pickup")
		return Order{}, false
	}
	m.stats.PickedUp++
	m.record(t, ord.ID, ActionPickup, origin, "")
	out := *ord
	out.Zone = origin
	return out, true
}

// ExpireSweep removes every non-fresh order and returns the number discarded.
// Linear in total occupancy.
func (m *StorageManager) ExpireSweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now()
	discarded := 0
	for _, z := range []*zone{m.cooler, m.heater, m.shelf} {
		for _, o := range append([]*Order(nil), z.orders...) {
			if o.Fresh(t) {
				continue
			}
			z.remove(o.ID)
			delete(m.byID, o.ID)
			m.stats.Discarded++
			discarded++
			m.record(t, o.ID, ActionDiscard, z.id, "expired")
		}
	}
	return discarded
}

// Snapshot returns a consistent occupancy view for diagnostics.
func (m *StorageManager) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now()
	return View{
		Cooler: m.zoneView(m.cooler, t),
		Heater: m.zoneView(m.heater, t),
		Shelf:  m.zoneView(m.shelf, t),
	}
}

func (m *StorageManager) zoneView(z *zone, t float64) ZoneView {
	v := ZoneView{
		Zone:     z.id,
		Capacity: z.capacity,
		Count:    z.len(),
		Orders:   make([]OrderView, 0, z.len()),
	}
	for _, o := range z.orders {
		v.Orders = append(v.Orders, OrderView{
			ID:            o.ID,
			Name:          o.Name,
			Temp:          o.Temp,
			RemainingLife: o.RemainingLife(t),
		})
	}
	return v
}

// Stats returns a copy of the outcome counters.
func (m *StorageManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
