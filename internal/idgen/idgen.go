// Package idgen generates 64-bit, time-ordered identifiers that are unique per node.
//
// Layout (most significant bit first):
//
//	1 bit   reserved, always 0
//	41 bits milliseconds since Epoch
//	10 bits machine id (0..1023)
//	12 bits per-millisecond sequence (0..4095)
//
// The reserved bit keeps every id positive, so ids fit BIGINT columns and int64 claims.
package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	timestampBits = 41
	machineBits   = 10
	sequenceBits  = 12

	// MaxMachineID is the largest machine id that fits the layout.
	MaxMachineID = 1<<machineBits - 1
	maxSequence  = 1<<sequenceBits - 1
	maxTimestamp = 1<<timestampBits - 1

	machineShift   = sequenceBits
	timestampShift = sequenceBits + machineBits
)

// Epoch is the zero point of the timestamp field (2024-01-01T00:00:00Z).
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var epochMillis = Epoch.UnixMilli()

var (
	// ErrConfig is returned when the machine id is outside [0, MaxMachineID].
	ErrConfig = errors.New("idgen: machine id out of range")
	// ErrClockRegression is returned when the wall clock is behind the last issued timestamp.
	// It is fatal for the generator: continuing could hand out duplicate or out-of-order ids.
	ErrClockRegression = errors.New("idgen: clock moved backwards")
	// ErrClockBeforeEpoch is returned when the wall clock reads earlier than Epoch.
	ErrClockBeforeEpoch = errors.New("idgen: clock is before epoch")
	// ErrEpochExhausted is returned once the 41-bit timestamp space is used up.
	ErrEpochExhausted = errors.New("idgen: timestamp exceeds 41 bits")
)

// Generator issues ids for one machine id. It is safe for concurrent use.
type Generator struct {
	mu            sync.Mutex
	machineID     int64
	lastTimestamp int64
	sequence      int64
	nowF          func() time.Time
}

// New returns a Generator for the given machine id.
// It fails with ErrConfig if machineID is outside [0, MaxMachineID].
func New(machineID int64) (*Generator, error) {
	if machineID < 0 || machineID > MaxMachineID {
		return nil, fmt.Errorf("%w: %d", ErrConfig, machineID)
	}
	return &Generator{
		machineID:     machineID,
		lastTimestamp: -1,
		nowF:          time.Now,
	}, nil
}

// NewDerived returns a Generator whose machine id is taken from DeriveMachineID.
func NewDerived() *Generator {
	g, _ := New(DeriveMachineID())
	return g
}

// AutoMachineID is the configured machine id that asks FromConfig to derive one from the host.
const AutoMachineID = -1

// FromConfig returns a Generator for a configured machine id: AutoMachineID derives it from the host,
// anything else goes through New and its range check.
func FromConfig(machineID int64) (*Generator, error) {
	if machineID == AutoMachineID {
		return NewDerived(), nil
	}
	return New(machineID)
}

// MachineID returns the machine id packed into every id of this generator.
func (g *Generator) MachineID() int64 {
	return g.machineID
}

// NextID returns the next id. Under sequence exhaustion it spins until the
// clock reaches the next millisecond.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.currentMillis()
	if err := checkTimestamp(ts); err != nil {
		return 0, err
	}
	if ts < g.lastTimestamp {
		return 0, fmt.Errorf("%w: now=%d last=%d", ErrClockRegression, ts, g.lastTimestamp)
	}

	seq := int64(0)
	if ts == g.lastTimestamp {
		seq = (g.sequence + 1) & maxSequence
		if seq == 0 {
			next, err := g.waitNextMillis(g.lastTimestamp)
			if err != nil {
				return 0, err
			}
			if err := checkTimestamp(next); err != nil {
				return 0, err
			}
			ts = next
		}
	}
	g.lastTimestamp = ts
	g.sequence = seq

	return Compose(Parts{Timestamp: ts, MachineID: g.machineID, Sequence: seq}), nil
}

// checkTimestamp rejects timestamps the 41-bit field cannot hold.
func checkTimestamp(ts int64) error {
	switch {
	case ts < 0:
		return fmt.Errorf("%w: %d ms before", ErrClockBeforeEpoch, -ts)
	case ts > maxTimestamp:
		return ErrEpochExhausted
	}
	return nil
}

func (g *Generator) waitNextMillis(last int64) (int64, error) {
	ts := g.currentMillis()
	for ts <= last {
		if ts < last {
			return 0, fmt.Errorf("%w: now=%d last=%d", ErrClockRegression, ts, last)
		}
		ts = g.currentMillis()
	}
	return ts, nil
}

func (g *Generator) currentMillis() int64 {
	return g.nowF().UnixMilli() - epochMillis
}

// Parts is the decoded form of an id. Timestamp is in milliseconds since Epoch.
type Parts struct {
	Timestamp int64
	MachineID int64
	Sequence  int64
}

// Time returns the wall-clock time encoded in the id.
func (p Parts) Time() time.Time {
	return time.UnixMilli(p.Timestamp + epochMillis).UTC()
}

// Compose packs parts into an id. Out-of-range fields are masked to their width.
func Compose(p Parts) int64 {
	return (p.Timestamp&maxTimestamp)<<timestampShift |
		(p.MachineID&MaxMachineID)<<machineShift |
		p.Sequence&maxSequence
}

// Decompose unpacks an id into its fields.
func Decompose(id int64) Parts {
	return Parts{
		Timestamp: (id >> timestampShift) & maxTimestamp,
		MachineID: (id >> machineShift) & MaxMachineID,
		Sequence:  id & maxSequence,
	}
}
