// ABOUTME: Fixed-capacity in-memory secret cell shared by all sessions
// ABOUTME: Serializes reads, writes, and stats snapshots under one mutex

package cell

import (
	"errors"
	"log/slog"
	"sync"
)

// MaxBytes is the cell capacity. It is a wire-contract constant: callers must
// present a receive buffer of at least MaxBytes, and the stored secret is at
// most MaxBytes-1 bytes. Must match on both sides of the interface.
const MaxBytes = 128

// Cell errors
var (
	// ErrShortBuffer means the caller's receive capacity is below MaxBytes.
	// The contract is worst-case sized: undersized callers are rejected even
	// when the current secret would fit, so they fail early and loudly.
	ErrShortBuffer = errors.New("receive buffer smaller than cell capacity")

	// ErrEmpty means no secret is currently set.
	ErrEmpty = errors.New("no secret available")

	// ErrOversize means the write payload cannot fit in the cell.
	ErrOversize = errors.New("payload exceeds cell capacity")
)

// Stats is a point-in-time snapshot of the cell's lifetime counters.
type Stats struct {
	TX     uint64 // bytes handed out by reads
	RX     uint64 // bytes accepted by writes
	Errors uint64 // rejected writes
}

// Cell holds the shared secret and its statistics. The buffer, cached length,
// and counters form one consistency unit: every operation takes the mutex, so
// no reader can observe a length that does not match the buffer and no two
// writes can interleave their byte copies.
type Cell struct {
	mu     sync.Mutex
	buf    [MaxBytes]byte
	length int
	stats  Stats
	logger *slog.Logger
}

// New creates a Cell holding the given initial secret. An initial value longer
// than MaxBytes-1 is truncated to fit; the original driver seeds "initmsg".
func New(initial []byte, logger *slog.Logger) *Cell {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cell{logger: logger.With("component", "cell")}
	n := len(initial)
	if n > MaxBytes-1 {
		n = MaxBytes - 1
	}
	copy(c.buf[:], initial[:n])
	c.length = n
	c.logger.Debug("cell initialized", "length", n)
	return c
}

// Read returns a copy of the current secret. The caller declares the size of
// its receive buffer; anything below MaxBytes is rejected with ErrShortBuffer
// regardless of the current secret length. An unset secret yields ErrEmpty.
// Rejected reads do not touch the error counter; only rejected writes do,
// matching the original driver's accounting.
func (c *Cell) Read(capacity int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if capacity < MaxBytes {
		c.logger.Warn("read rejected: receive buffer too small",
			"capacity", capacity, "required", MaxBytes)
		return nil, ErrShortBuffer
	}
	if c.length == 0 {
		c.logger.Warn("read rejected: no secret set")
		return nil, ErrEmpty
	}

	out := make([]byte, c.length)
	copy(out, c.buf[:c.length])
	c.stats.TX += uint64(c.length)

	c.logger.Debug("secret read", "bytes", c.length, "tx", c.stats.TX)
	return out, nil
}

// Write replaces the secret with data. Payloads longer than MaxBytes-1 are
// rejected whole with ErrOversize and counted in Errors; nothing is ever
// stored truncated. Returns the number of bytes accepted.
func (c *Cell) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(data) > MaxBytes-1 {
		c.stats.Errors++
		c.logger.Warn("write rejected: payload too large",
			"bytes", len(data), "max", MaxBytes-1, "errors", c.stats.Errors)
		return 0, ErrOversize
	}

	copy(c.buf[:], data)
	c.length = len(data)
	c.stats.RX += uint64(len(data))

	c.logger.Debug("secret written", "bytes", len(data), "rx", c.stats.RX)
	return len(data), nil
}

// Len returns the current secret length in bytes.
func (c *Cell) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// Stats returns a snapshot of the lifetime counters, taken under the same
// lock as reads and writes so it can never tear.
func (c *Cell) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
