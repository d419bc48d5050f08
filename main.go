package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ben-mays/kitchen-ledger/client"
	"github.com/ben-mays/kitchen-ledger/harness"
	"github.com/ben-mays/kitchen-ledger/kitchen"
	"github.com/ben-mays/kitchen-ledger/server"
)

const (
	// EnvKey is the environment variable that represents the runtime environment
	EnvKey string = "SERVICE_ENV"
)

type Env string

// getEnv attempts to read the environment. If unsuccessful to authoritatively
// determine the env, returns development.
func getEnv() Env {
	env, exists := os.LookupEnv(EnvKey)
	if !exists || len(env) == 0 {
		return "development"
	}
	return Env(env)
}

var defaultConfig = []byte(`
kitchen:
  cooler_capacity: 6
  heater_capacity: 6
  shelf_capacity: 12
harness:
  rate: 2.0
  pickup_min: 4
  pickup_max: 8
  sweep_interval: 1.0
  submit_retries: 3
  submit_backoff: 0.5
server:
  port: 8080
client:
  url: ""
`)

// loadConfig resolves the environment's yaml config, falling back to the
// embedded defaults when no config file is present.
func loadConfig(env Env) (config.Provider, error) {
	configPath := fmt.Sprintf("config/%s.yaml", env)
	if _, err := os.Stat(configPath); err == nil {
		return config.NewYAML(config.File(configPath))
	}
	return config.NewYAML(config.Source(bytes.NewReader(defaultConfig)))
}

// menu mirrors the sample dishes the challenge server hands out; freshness is
// in seconds.
var menu = []struct {
	name      string
	temp      kitchen.Temperature
	freshness float64
}{
	{"Cheese Pizza", kitchen.TempHot, 300},
	{"Caesar Salad", kitchen.TempCold, 600},
	{"Chicken Wings", kitchen.TempHot, 450},
	{"Ice Cream", kitchen.TempCold, 900},
	{"Sandwich", kitchen.TempRoom, 1200},
	{"Soup", kitchen.TempHot, 600},
	{"Sushi", kitchen.TempCold, 300},
	{"Bread", kitchen.TempRoom, 1800},
	{"Steak", kitchen.TempHot, 480},
	{"Milk", kitchen.TempCold, 720},
}

// makeOrders generates a simulated order stream when no challenge server is
// configured.
func makeOrders(count int, seed int64) []kitchen.Order {
	rng := rand.New(rand.NewSource(seed))
	orders := make([]kitchen.Order, count)
	for i := range orders {
		dish := menu[rng.Intn(len(menu))]
		orders[i] = kitchen.Order{
			ID:        fmt.Sprintf("order-%03d-%s", i, uuid.New().String()[:8]),
			Name:      dish.name,
			Temp:      dish.temp,
			Freshness: dish.freshness,
		}
	}
	return orders
}

type flags struct {
	rate       float64
	pickupMin  int
	pickupMax  int
	seed       uint64
	sourceURL  string
	orderCount int
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "kitchen-ledger",
		Short:         "Drive the kitchen storage manager and submit its action ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}
	cmd.Flags().Float64Var(&f.rate, "rate", 2.0, "order arrivals per second")
	cmd.Flags().IntVar(&f.pickupMin, "pickup-min", 4, "minimum pickup delay in seconds")
	cmd.Flags().IntVar(&f.pickupMax, "pickup-max", 8, "maximum pickup delay in seconds")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "pickup delay RNG seed (omit for a random seed)")
	cmd.Flags().StringVar(&f.sourceURL, "source-url", "", "challenge server base URL (empty = simulated orders)")
	cmd.Flags().IntVar(&f.orderCount, "orders", 20, "number of simulated orders when no source URL is set")
	return cmd
}

func run(cmd *cobra.Command, f flags) error {
	env := getEnv()
	provider, err := loadConfig(env)
	if err != nil {
		return err
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	hcfg, err := harness.ProvideConfig(provider)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("rate") {
		hcfg.Rate = f.rate
	}
	if cmd.Flags().Changed("pickup-min") {
		hcfg.PickupMin = float64(f.pickupMin)
	}
	if cmd.Flags().Changed("pickup-max") {
		hcfg.PickupMax = float64(f.pickupMax)
	}
	if cmd.Flags().Changed("seed") {
		hcfg.Seed = &f.seed
	}
	if err := hcfg.Validate(); err != nil {
		return err
	}

	clock := kitchen.NewMonotonicClock()
	ledger := kitchen.NewLedger()

	// app is the application container; it owns the storage manager and the
	// diagnostics server lifecycle.
	var storage *kitchen.StorageManager
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			func() config.Provider { return provider },
			func() kitchen.Clock { return clock },
			func() *kitchen.Ledger { return ledger },
			func() *zap.Logger { return logger },
			kitchen.ProvideStorageManager,
			server.Provide,
		),
		fx.Invoke(server.Start),
		fx.Populate(&storage),
	)
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Stop(stopCtx)
	}()

	var source harness.OrderSource
	var submitter harness.Submitter
	if f.sourceURL != "" {
		c, err := client.New(f.sourceURL)
		if err != nil {
			return err
		}
		if source, err = c.NewSource(); err != nil {
			return err
		}
		submitter = c
	} else {
		if f.orderCount <= 0 {
			return fmt.Errorf("orders must be > 0, got %d", f.orderCount)
		}
		simSeed := time.Now().UnixNano()
		if hcfg.Seed != nil {
			simSeed = int64(*hcfg.Seed)
		}
		source = harness.NewStaticSource(makeOrders(f.orderCount, simSeed))
		submitter = harness.LogSubmitter{Log: sugar}
	}

	h, err := harness.New(hcfg, storage, source, submitter, sugar)
	if err != nil {
		return err
	}

	type result struct {
		summary harness.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := h.Run()
		done <- result{summary, err}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupt:
		return fmt.Errorf("interrupted")
	case r := <-done:
		printSummary(r.summary)
		return r.err
	}
}

func printSummary(s harness.Summary) {
	fmt.Printf("Summary:\n  Orders: %d\n  Rejected: %d\n  Delivered: %d\n  Missed pickups: %d\n  Placed: %d\n  Moved: %d\n  Discarded: %d\n  Ledger actions: %d\n",
		s.Orders,
		s.Rejected,
		s.Delivered,
		s.Missed,
		s.Storage.Placed,
		s.Storage.Moved,
		s.Storage.Discarded,
		s.Actions)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
