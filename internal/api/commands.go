package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/engine"
	"github.com/talgya/cultivar/internal/facility"
	"github.com/talgya/cultivar/internal/workforce"
)

// CommandKind names one kind of queued admin mutation.
type CommandKind string

const (
	CommandPurchase CommandKind = "purchase"
	CommandPlant    CommandKind = "plant"
	CommandHire     CommandKind = "hire"
	CommandDismiss  CommandKind = "dismiss"
	CommandService  CommandKind = "service"
	CommandConfig   CommandKind = "config"
)

// Command is one admin mutation queued by the HTTP surface and applied by
// the accounting-phase handler. The facility tree has exactly one writer
// per tick, so handlers never touch it directly: they validate, queue, and
// the engine applies the command on its next pass.
type Command struct {
	Kind        CommandKind `json:"kind"`
	ZoneID      string      `json:"zone_id,omitempty"`
	BlueprintID string      `json:"blueprint_id,omitempty"`
	StrainID    string      `json:"strain_id,omitempty"`
	TargetID    string      `json:"target_id,omitempty"` // candidate, employee, or device id
	Quantity    int         `json:"quantity,omitempty"`

	TickLengthMinutes float64 `json:"tick_length_minutes,omitempty"`
	PriceMultiplier   float64 `json:"price_multiplier,omitempty"`
}

// EnqueueCommand queues an admin command for the next tick.
func (s *Server) EnqueueCommand(cmd Command) {
	s.cmdMu.Lock()
	s.commands = append(s.commands, cmd)
	s.cmdMu.Unlock()
}

// DrainCommands takes all pending commands, leaving the queue empty.
func (s *Server) DrainCommands() []Command {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	out := s.commands
	s.commands = nil
	return out
}

// CommandHandler returns the accounting-phase handler that applies queued
// admin commands. A command whose target vanished between queueing and
// application is logged and dropped; only real failures (a charge that
// errors for anything but a missing price) fail the tick.
func (s *Server) CommandHandler() engine.PhaseHandler {
	return func(ctx context.Context, pc *engine.PhaseContext) error {
		for _, cmd := range s.DrainCommands() {
			if err := s.applyCommand(pc, cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Server) applyCommand(pc *engine.PhaseContext, cmd Command) error {
	switch cmd.Kind {
	case CommandPurchase:
		return s.applyPurchase(pc, cmd)

	case CommandPlant:
		zone := zoneByID(pc.State, cmd.ZoneID)
		if zone == nil {
			slog.Warn("plant command dropped, zone gone", "zone", cmd.ZoneID)
			return nil
		}
		if _, err := s.Sim.PlantSeedling(zone, cmd.StrainID); err != nil {
			slog.Warn("plant command dropped", "strain", cmd.StrainID, "error", err)
		}
		return nil

	case CommandHire:
		emp, err := s.Market.Hire(pc.State, cmd.TargetID, pc.Tick)
		if err != nil {
			slog.Warn("hire command dropped", "candidate", cmd.TargetID, "error", err)
			return nil
		}
		slog.Info("hired", "employee", emp.Name, "role", emp.Role, "salary", emp.SalaryPerTick)
		return nil

	case CommandDismiss:
		if err := workforce.Dismiss(pc.State, cmd.TargetID); err != nil {
			slog.Warn("dismiss command dropped", "employee", cmd.TargetID, "error", err)
		}
		return nil

	case CommandService:
		ce := s.Engine.CostEngine()
		if ce == nil {
			slog.Warn("service command dropped, no cost engine wired", "device", cmd.TargetID)
			return nil
		}
		for _, dev := range pc.State.AllDevices() {
			if dev.ID == cmd.TargetID {
				ce.ServiceDevice(dev, pc.Tick)
				return nil
			}
		}
		slog.Warn("service command dropped, device gone", "device", cmd.TargetID)
		return nil

	case CommandConfig:
		if cmd.TickLengthMinutes > 0 {
			s.Engine.SetTickLength(cmd.TickLengthMinutes)
			slog.Info("tick length changed", "minutes", cmd.TickLengthMinutes)
		}
		if cmd.PriceMultiplier > 0 {
			pc.State.ItemPriceMultiplier = cmd.PriceMultiplier
			slog.Info("price multiplier changed", "multiplier", cmd.PriceMultiplier)
		}
		return nil
	}
	return nil
}

// applyPurchase charges the capital cost through the accounting facade and
// only installs hardware on a successful charge.
func (s *Server) applyPurchase(pc *engine.PhaseContext, cmd Command) error {
	if pc.Accounting == nil {
		slog.Warn("purchase dropped, no accounting wired", "blueprint", cmd.BlueprintID)
		return nil
	}

	cost, err := pc.Accounting.RecordDevicePurchase(cmd.BlueprintID, cmd.Quantity,
		fmt.Sprintf("purchase: %d × %s", cmd.Quantity, cmd.BlueprintID))
	if err != nil {
		var missing *economy.MissingPriceError
		if errors.As(err, &missing) {
			slog.Warn("purchase rejected, no catalog price", "blueprint", missing.BlueprintID)
			return nil
		}
		return err
	}

	zone := zoneByID(pc.State, cmd.ZoneID)
	if zone == nil {
		slog.Warn("purchase zone vanished, devices go uninstalled", "zone", cmd.ZoneID)
		return nil
	}
	for i := 0; i < cmd.Quantity; i++ {
		if _, err := s.Sim.InstallDevice(zone, cmd.BlueprintID); err != nil {
			return err
		}
	}
	slog.Info("devices installed",
		"blueprint", cmd.BlueprintID,
		"quantity", cmd.Quantity,
		"zone", cmd.ZoneID,
		"cost", cost)
	return nil
}

func zoneByID(state *facility.State, id string) *facility.Zone {
	for _, z := range state.AllZones() {
		if z.ID == id {
			return z
		}
	}
	return nil
}
