package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Bus is the servo I/O an arm needs. Positions are raw servo steps keyed by
// servo ID.
type Bus interface {
	EnableAll(ctx context.Context) error
	DisableAll(ctx context.Context) error
	Positions(ctx context.Context) (map[int]int, error)
	SetPositions(ctx context.Context, positions map[int]int) error
	Close() error
}

// BusOpener opens a bus for the servos with the given IDs on port.
type BusOpener func(port string, ids []int) (Bus, error)

// feetechBus drives a group of Feetech STS servos over one serial port.
type feetechBus struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
}

// OpenFeetechBus opens the serial bus at 1 Mbaud using the STS protocol.
func OpenFeetechBus(port string, ids []int) (Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &feetechBus{
		bus:   bus,
		group: feetech.NewServoGroupByIDs(bus, ids...),
	}, nil
}

func (b *feetechBus) EnableAll(ctx context.Context) error {
	return b.group.EnableAll(ctx)
}

func (b *feetechBus) DisableAll(ctx context.Context) error {
	return b.group.DisableAll(ctx)
}

func (b *feetechBus) Positions(ctx context.Context) (map[int]int, error) {
	raw, err := b.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	out := make(map[int]int, len(raw))
	for id, pos := range raw {
		out[id] = pos
	}
	return out, nil
}

func (b *feetechBus) SetPositions(ctx context.Context, positions map[int]int) error {
	raw := make(feetech.PositionMap, len(positions))
	for id, pos := range positions {
		raw[id] = pos
	}
	if err := b.group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

func (b *feetechBus) Close() error {
	return b.bus.Close()
}
