package harness

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/config"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ben-mays/kitchen-ledger/kitchen"
)

// Config drives the harness. Durations are in seconds to match the kitchen
// clock; the CLI exposes Rate, PickupMin, PickupMax and Seed.
type Config struct {
	// Rate is the arrival rate in orders per second.
	Rate float64 `yaml:"rate"`

	// PickupMin/PickupMax bound the uniform per-order pickup delay.
	PickupMin float64 `yaml:"pickup_min"`
	PickupMax float64 `yaml:"pickup_max"`

	// SweepInterval is the expiry sweeper period.
	SweepInterval float64 `yaml:"sweep_interval"`

	// Seed seeds the pickup-delay RNG for deterministic replay. Nil draws
	// a seed from the wall clock; any explicit value, including zero, is
	// honored.
	Seed *uint64 `yaml:"seed"`

	// SubmitRetries and SubmitBackoff bound the ledger submission retry
	// loop; backoff doubles after each failure.
	SubmitRetries int     `yaml:"submit_retries"`
	SubmitBackoff float64 `yaml:"submit_backoff"`
}

func DefaultConfig() Config {
	return Config{
		Rate:          2.0,
		PickupMin:     4,
		PickupMax:     8,
		SweepInterval: 1.0,
		SubmitRetries: 3,
		SubmitBackoff: 0.5,
	}
}

func (c Config) Validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("harness: rate must be > 0, got %v", c.Rate)
	}
	if c.PickupMin < 0 || c.PickupMax < c.PickupMin {
		return fmt.Errorf("harness: invalid pickup window [%v, %v]", c.PickupMin, c.PickupMax)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("harness: sweep interval must be > 0, got %v", c.SweepInterval)
	}
	if c.SubmitRetries < 1 {
		return fmt.Errorf("harness: submit retries must be >= 1, got %d", c.SubmitRetries)
	}
	return nil
}

// ProvideConfig reads the "harness" key from the app config provider.
func ProvideConfig(provider config.Provider) (Config, error) {
	cfg := DefaultConfig()
	if err := provider.Get("harness").Populate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Summary is the outcome of one run.
type Summary struct {
	Orders    int
	Rejected  int
	Delivered int
	Missed    int
	Actions   int
	Storage   kitchen.Stats
}

// Harness drives the kitchen: it pulls orders from the source at the
// configured rate, schedules one pickup task per admitted order, keeps a
// periodic expiry sweeper running, and finally submits the ledger. Arrivals,
// pickups and the sweeper share nothing but the StorageManager.
type Harness struct {
	cfg       Config
	storage   *kitchen.StorageManager
	source    OrderSource
	submitter Submitter
	log       *zap.SugaredLogger

	// delay is owned by the arrival loop; pickup goroutines never touch it.
	delay distuv.Uniform

	rejected  atomic.Int64
	delivered atomic.Int64
	missed    atomic.Int64
}

func New(cfg Config, storage *kitchen.StorageManager, source OrderSource, submitter Submitter, log *zap.SugaredLogger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	return &Harness{
		cfg:       cfg,
		storage:   storage,
		source:    source,
		submitter: submitter,
		log:       log,
		delay: distuv.Uniform{
			Min: cfg.PickupMin,
			Max: cfg.PickupMax,
			Src: rand.NewSource(seed),
		},
	}, nil
}

// Run executes the full lifecycle: arrivals, pickups, sweeps, final sweep,
// submission. It returns once every scheduled pickup has resolved and the
// ledger has been handed off (or submission exhausted its retries).
func (h *Harness) Run() (Summary, error) {
	stop := make(chan struct{})
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go h.sweep(stop, &sweeper)

	interArrival := time.Duration(float64(time.Second) / h.cfg.Rate)
	var pickups sync.WaitGroup
	orders := 0
	o, ok := h.source.Next()
	for ok {
		orders++
		h.admit(&pickups, o)
		// No post-sleep after the last order.
		if o, ok = h.source.Next(); ok {
			time.Sleep(interArrival)
		}
	}

	h.log.Infow("order stream exhausted, draining pickups", "orders", orders)
	pickups.Wait()
	close(stop)
	sweeper.Wait()
	h.storage.ExpireSweep()
	h.log.Infow("storage after final sweep", "view", h.storage.Snapshot())

	actions := h.storage.Ledger().Snapshot()
	err := h.submit(actions)

	s := Summary{
		Orders:    orders,
		Rejected:  int(h.rejected.Load()),
		Delivered: int(h.delivered.Load()),
		Missed:    int(h.missed.Load()),
		Actions:   len(actions),
		Storage:   h.storage.Stats(),
	}
	return s, err
}

func (h *Harness) admit(pickups *sync.WaitGroup, o kitchen.Order) {
	if err := h.storage.Place(o); err != nil {
		// Malformed records are dropped, not fatal.
		h.rejected.Inc()
		h.log.Warnw("order rejected", "id", o.ID, "err", err)
		return
	}
	delay := time.Duration(h.delay.Rand() * float64(time.Second))
	pickups.Add(1)
	go func(id string) {
		defer pickups.Done()
		time.Sleep(delay)
		if _, ok := h.storage.Pickup(id); ok {
			h.delivered.Inc()
		} else {
			// Expired or already discarded; the ledger holds the DISCARD.
			h.missed.Inc()
			h.log.Debugw("pickup missed", "id", id)
		}
	}(o.ID)
}

func (h *Harness) sweep(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(time.Duration(h.cfg.SweepInterval * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := h.storage.ExpireSweep(); n > 0 {
				h.log.Infow("swept expired orders", "count", n)
			}
		case <-stop:
			return
		}
	}
}

func (h *Harness) submit(actions []kitchen.Action) error {
	backoff := time.Duration(h.cfg.SubmitBackoff * float64(time.Second))
	var err error
	for attempt := 1; attempt <= h.cfg.SubmitRetries; attempt++ {
		if err = h.submitter.Submit(actions); err == nil {
			h.log.Infow("ledger submitted", "actions", len(actions), "attempt", attempt)
			return nil
		}
		h.log.Warnw("ledger submission failed", "attempt", attempt, "err", err)
		if attempt < h.cfg.SubmitRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return errors.Wrapf(err, "submitting ledger after %d attempts", h.cfg.SubmitRetries)
}
