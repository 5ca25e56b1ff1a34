package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophstorage/internal/client/session"
	"github.com/iudanet/gophstorage/internal/models"
)

func newTakeCommand(wrap commandWrapper) *cobra.Command {
	var (
		anchor string
		radius float64
	)
	cmd := wrap(&cobra.Command{
		Use:   "take <terminal> <slot> <amount>",
		Short: "Withdraw items from a view slot into the player's inventory",
		Args:  cobra.ExactArgs(3),
	}, func(ctx context.Context, c *Cli, args []string) error {
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid slot %q: %w", args[1], err)
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		opts, err := buildSessionOptions(anchor, radius)
		if err != nil {
			return err
		}
		return RunTake(ctx, c, args[0], slot, amount, opts)
	})
	addSessionFlags(cmd, &anchor, &radius)
	return cmd
}

// RunTake withdraws amount units from a slot
func RunTake(ctx context.Context, c *Cli, terminalID string, slot, amount int, opts sessionOptions) error {
	var (
		item  models.ItemIdentity
		moved int
		had   int
	)
	res, err := c.runSession(ctx, terminalID, opts, func(s *session.Service) error {
		view := s.View()
		if slot >= 0 && slot < len(view.Slots) {
			item = view.Slots[slot].Identity
			had = s.Bag().Amount(item)
		}
		var err error
		moved, err = s.Take(slot, amount)
		return err
	})
	if err != nil {
		return err
	}

	got := c.bagAmount(ctx, item) - had
	printHeader(c.io, res)
	c.io.Printf("Took %d x %s", got, c.catalog.DisplayName(item))
	if got < moved {
		c.io.Printf(" (%d requested, the rest was no longer there)", moved)
	}
	c.io.Println()
	return nil
}

func newPutCommand(wrap commandWrapper) *cobra.Command {
	var (
		anchor string
		radius float64
		slot   int
	)
	cmd := wrap(&cobra.Command{
		Use:   "put <terminal> <item> <amount>",
		Short: "Deposit items the client holds into a terminal",
		Args:  cobra.ExactArgs(3),
	}, func(ctx context.Context, c *Cli, args []string) error {
		item, err := models.ParseItemIdentity(args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		opts, err := buildSessionOptions(anchor, radius)
		if err != nil {
			return err
		}
		return RunPut(ctx, c, args[0], item, amount, slot, opts)
	})
	addSessionFlags(cmd, &anchor, &radius)
	cmd.Flags().IntVar(&slot, "slot", -1, "target slot (default: a stack of the same item or the spare slot)")
	return cmd
}

// RunPut deposits amount units of item, splitting across slots when needed
func RunPut(ctx context.Context, c *Cli, terminalID string, item models.ItemIdentity, amount, slot int, opts sessionOptions) error {
	var before int
	res, err := c.runSession(ctx, terminalID, opts, func(s *session.Service) error {
		before = s.Bag().Amount(item)
		if before == 0 {
			return fmt.Errorf("no %s in the bag", item)
		}

		left := min(amount, before)
		if slot >= 0 {
			_, err := s.Put(slot, item, left)
			return err
		}

		for _, i := range targetSlots(s.View(), item) {
			n, err := s.Put(i, item, left)
			if err != nil {
				continue
			}
			left -= n
			if left == 0 {
				return nil
			}
		}
		if left == min(amount, before) {
			return fmt.Errorf("no room for %s in the terminal view", item)
		}
		return nil
	})
	if err != nil {
		return err
	}

	stored := before - c.bagAmount(ctx, item)
	printHeader(c.io, res)
	c.io.Printf("Stored %d x %s\n", stored, c.catalog.DisplayName(item))
	return nil
}

// targetSlots lists stacks of item first, then empty slots
func targetSlots(v session.View, item models.ItemIdentity) []int {
	var same, empty []int
	for i, s := range v.Slots {
		switch {
		case s.Empty():
			empty = append(empty, i)
		case s.Identity == item:
			same = append(same, i)
		}
	}
	return append(same, empty...)
}

// RunFilter sets or clears the per-terminal filter
func RunFilter(ctx context.Context, c *Cli, args []string) error {
	terminalID := args[0]
	prefs, err := c.viewPreferences(ctx, terminalID)
	if err != nil {
		return err
	}

	prefs.Filter = ""
	if len(args) > 1 {
		prefs.Filter = args[1]
	}
	if err := c.store.SaveView(ctx, terminalID, prefs); err != nil {
		return fmt.Errorf("failed to save filter: %w", err)
	}

	if prefs.Filter == "" {
		c.io.Printf("Filter cleared for %s\n", terminalID)
	} else {
		c.io.Printf("Filter for %s: %q\n", terminalID, prefs.Filter)
	}
	return nil
}

// RunBag lists the local inventory mirror
func RunBag(ctx context.Context, c *Cli, _ []string) error {
	profile, err := c.requireProfile(ctx)
	if err != nil {
		return err
	}
	items, err := c.store.GetBag(ctx, profile.PlayerID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		c.io.Println("Bag is empty")
		return nil
	}

	ids := make([]models.ItemIdentity, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	c.io.Printf("=== Bag of %s ===\n", profile.PlayerID)
	for _, id := range ids {
		c.io.Printf("%-24s %-16s x%d\n", id.String(), c.catalog.DisplayName(id), items[id])
	}
	return nil
}

func (c *Cli) bagAmount(ctx context.Context, item models.ItemIdentity) int {
	profile, err := c.store.GetProfile(ctx)
	if err != nil {
		return 0
	}
	items, err := c.store.GetBag(ctx, profile.PlayerID)
	if err != nil {
		return 0
	}
	return items[item]
}

func parseAmount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid amount %q: must be a positive integer", s)
	}
	return n, nil
}
