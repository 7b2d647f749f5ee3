// Command cultivar runs the cultivation facility simulation daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/cultivar/internal/api"
	"github.com/talgya/cultivar/internal/blueprints"
	"github.com/talgya/cultivar/internal/config"
	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/engine"
	"github.com/talgya/cultivar/internal/entropy"
	"github.com/talgya/cultivar/internal/facility"
	"github.com/talgya/cultivar/internal/persistence"
	"github.com/talgya/cultivar/internal/sim"
	"github.com/talgya/cultivar/internal/workforce"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Cultivar — facility simulation daemon")

	// ── Game data ─────────────────────────────────────────────────────
	lib, err := blueprints.Load(cfg.LibraryPath)
	if err != nil {
		slog.Error("failed to load library", "path", cfg.LibraryPath, "error", err)
		os.Exit(1)
	}
	slog.Info("library loaded",
		"devices", len(lib.Devices),
		"strains", len(lib.Strains),
		"path", cfg.LibraryPath)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Randomness ────────────────────────────────────────────────────
	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.RandomSeed()
	}
	rand := entropy.NewSource(seed)
	slog.Info("entropy seeded", "seed", seed)

	// ── Load or Generate Facility ─────────────────────────────────────
	simulation := sim.New(lib, sim.NewClimate(int64(seed)), rand)

	state, err := db.LoadState()
	switch {
	case err == nil:
		slog.Info("facility restored",
			"name", state.Name,
			"tick", state.Clock.Tick,
			"sim_time", engine.SimTime(state.Clock.Tick),
			"cash", state.Finances.CashOnHand)
	case errors.Is(err, persistence.ErrNoSave):
		slog.Info("no saved facility, seeding a new one", "name", cfg.FacilityName)
		state = seedFacility(cfg, simulation)
	default:
		slog.Error("failed to load facility", "error", err)
		os.Exit(1)
	}

	// ── Labor Market ──────────────────────────────────────────────────
	market := workforce.NewMarket(rand)
	market.Refresh(state.Clock.Tick)

	// ── Engine ────────────────────────────────────────────────────────
	costEngine := economy.NewCostEngine(lib.PriceCatalog())
	hub := api.NewHub()

	server := &api.Server{
		Sim:         simulation,
		Market:      market,
		DB:          db,
		Hub:         hub,
		Addr:        cfg.HTTPAddr,
		AdminKey:    cfg.AdminAPIKey,
		LibraryPath: cfg.LibraryPath,
	}

	opts := simulation.Options()
	opts = append(opts,
		engine.WithCostEngine(costEngine),
		engine.WithTickLength(cfg.TickLengthMinutes),
		engine.WithSink(hub.Broadcast),
		engine.WithHandler(engine.PhaseAccounting, server.CommandHandler()),
		engine.WithCommitHook(commitHook(db, server, simulation, costEngine, cfg.SaveEveryTicks)),
	)
	eng := engine.New(state, opts...)
	server.Engine = eng

	loop := engine.NewLoop(eng)
	loop.Interval = time.Duration(cfg.TickIntervalMs) * time.Millisecond
	loop.OnResult = func(res *engine.TickResult) {
		if err := db.SaveEvents(res.Events); err != nil {
			slog.Error("event save failed", "tick", res.Tick, "error", err)
		}
	}
	loop.OnWeek = func(tick int64) {
		market.Refresh(tick)
		slog.Info("labor market refreshed", "tick", tick, "candidates", len(market.Candidates()))
	}
	server.Loop = loop

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set — admin POST endpoints will be disabled")
	}
	server.Start()

	// ── Run ───────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\n%s is running: %d plants, %d employees, %.0f cash.\n",
		state.Name, state.PlantCount(), len(state.Personnel), state.Finances.CashOnHand)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.HTTPAddr)
	if state.Clock.Tick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", state.Clock.Tick, engine.SimTime(state.Clock.Tick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	loop.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	slog.Info("final save...")
	if err := db.SaveState(eng.State()); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Facility state saved.")
}

// commitHook runs end-of-tick external work: applying a staged library
// reload (so the price catalog swaps between ticks, never under one) and
// persisting the facility on a tick cadence. Running inside the commit
// phase means a failed save fails the tick and the clock stays put.
func commitHook(db *persistence.DB, server *api.Server, simulation *sim.Simulation, costEngine *economy.CostEngine, everyTicks int64) engine.PhaseHandler {
	return func(ctx context.Context, pc *engine.PhaseContext) error {
		if lib := server.TakePendingLibrary(); lib != nil {
			simulation.Library = lib
			costEngine.UpdateCatalog(lib.PriceCatalog())
			slog.Info("library reload applied",
				"tick", pc.Tick, "devices", len(lib.Devices), "strains", len(lib.Strains))
		}

		if everyTicks <= 0 || pc.Tick%everyTicks != 0 {
			return nil
		}
		if err := db.SaveState(pc.State); err != nil {
			return fmt.Errorf("autosave: %w", err)
		}
		return nil
	}
}

// seedFacility builds the starting facility: one rented building with two
// grow zones, basic hardware, and a first crop in the ground.
func seedFacility(cfg config.ServerConfig, simulation *sim.Simulation) *facility.State {
	zoneA := &facility.Zone{
		ID:         "zone-a",
		Name:       "Grow Zone A",
		AreaM2:     40,
		Insulation: 0.85,
		Environment: facility.Environment{
			TemperatureC:     22,
			RelativeHumidity: 0.55,
			CO2PPM:           420,
		},
	}
	zoneB := &facility.Zone{
		ID:         "zone-b",
		Name:       "Grow Zone B",
		AreaM2:     40,
		Insulation: 0.85,
		Environment: facility.Environment{
			TemperatureC:     22,
			RelativeHumidity: 0.55,
			CO2PPM:           420,
		},
	}

	state := &facility.State{
		Name: cfg.FacilityName,
		Structures: []*facility.Structure{{
			ID:          "warehouse-1",
			Name:        "Warehouse Unit 1",
			RentPerTick: 12.5,
			Rooms: []*facility.Room{
				{
					ID:      "growroom-1",
					Name:    "Growroom 1",
					Purpose: "growroom",
					Zones:   []*facility.Zone{zoneA, zoneB},
				},
				{
					ID:      "storage-1",
					Name:    "Dry Storage",
					Purpose: "storage",
				},
			},
		}},
		Inventory: facility.Inventory{
			WaterLiters:    5000,
			NutrientsGrams: 20000,
		},
		Finances:            facility.Finances{CashOnHand: cfg.StartingCash},
		ItemPriceMultiplier: 1.0,
		AutoSellHarvest:     cfg.AutoSellHarvest,
	}

	for _, zone := range []*facility.Zone{zoneA, zoneB} {
		for _, bp := range []string{"led-panel-600", "hvac-split-2t", "dehumidifier-50l", "drip-rig-8"} {
			if _, err := simulation.InstallDevice(zone, bp); err != nil {
				slog.Warn("seed device skipped", "blueprint", bp, "error", err)
			}
		}
		for i := 0; i < 8; i++ {
			if _, err := simulation.PlantSeedling(zone, "northern-haze"); err != nil {
				slog.Warn("seed plant skipped", "error", err)
				break
			}
		}
	}

	return state
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
