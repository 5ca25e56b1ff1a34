package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// Entry is one recorded world drop
type Entry struct {
	storage.WorldDrop
	Item string `json:"item"`
}

// DropLog is a storage.World whose drops are also written to the audit trail
type DropLog struct {
	storage.World
	w      *JSONLZstdWriter
	logger *slog.Logger
}

// NewDropLog wraps world; files go to dir/drops-*.jsonl.zst
func NewDropLog(world storage.World, dir string, logger *slog.Logger) *DropLog {
	return &DropLog{
		World:  world,
		w:      NewJSONLZstdWriter(dir, "drops"),
		logger: logger,
	}
}

// Drop forwards to the world and records the drop. An audit write failure
// is logged and does not fail the drop.
func (d *DropLog) Drop(ctx context.Context, drop storage.WorldDrop) error {
	if err := d.World.Drop(ctx, drop); err != nil {
		return err
	}

	if err := d.w.Write(Entry{WorldDrop: drop, Item: drop.Identity.String()}); err != nil {
		d.logger.Error("Failed to write drop audit entry",
			"terminal_id", drop.TerminalID,
			"item", drop.Identity.String(),
			"amount", drop.Amount,
			"error", err)
	}
	return nil
}

// Close flushes the audit trail
func (d *DropLog) Close() error {
	return d.w.Close()
}

// ReadFile decodes every entry of one audit file
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return entries, nil
}

// ReadDir decodes every drop audit file in dir in name order
func ReadDir(dir string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "drops-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, p := range paths {
		entries, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Total sums audited amounts of one identity
func Total(entries []Entry, id models.ItemIdentity) int {
	total := 0
	for _, e := range entries {
		if e.Identity == id {
			total += e.Amount
		}
	}
	return total
}
