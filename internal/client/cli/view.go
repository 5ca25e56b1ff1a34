package cli

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophstorage/internal/client/iocli"
	"github.com/iudanet/gophstorage/internal/client/session"
)

const (
	minCellWidth = 10
	maxCellWidth = 24
)

type commandWrapper func(cmd *cobra.Command, run func(ctx context.Context, c *Cli, args []string) error) *cobra.Command

// addSessionFlags регистрирует --anchor и --radius
func addSessionFlags(cmd *cobra.Command, anchor *string, radius *float64) {
	cmd.Flags().StringVar(anchor, "anchor", "", "terminal position x,y,z (default: parsed from the terminal id)")
	cmd.Flags().Float64Var(radius, "radius", 0, "scan radius (default: saved preference or server default)")
}

func buildSessionOptions(anchor string, radius float64) (sessionOptions, error) {
	opts := sessionOptions{radius: radius}
	if anchor != "" {
		a, err := ParseVec3(anchor)
		if err != nil {
			return opts, err
		}
		opts.anchor = &a
	}
	return opts, nil
}

func newViewCommand(wrap commandWrapper) *cobra.Command {
	var (
		anchor string
		radius float64
	)
	cmd := wrap(&cobra.Command{
		Use:   "view <terminal>",
		Short: "Show the aggregated contents of a storage terminal",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, c *Cli, args []string) error {
		opts, err := buildSessionOptions(anchor, radius)
		if err != nil {
			return err
		}
		return RunView(ctx, c, args[0], opts)
	})
	addSessionFlags(cmd, &anchor, &radius)
	return cmd
}

// RunView opens the terminal and prints its projected view
func RunView(ctx context.Context, c *Cli, terminalID string, opts sessionOptions) error {
	res, err := c.runSession(ctx, terminalID, opts, nil)
	if err != nil {
		return err
	}
	printHeader(c.io, res)
	renderView(c.io, res.view, c.io.Width())
	return nil
}

func printHeader(out iocli.IO, res *sessionResult) {
	st := res.status
	out.Printf("=== %s ===\n", st.TerminalID)
	out.Printf("Revision %d, %d chests, %d/%d slots used\n", st.Revision, st.ChestCount, st.SlotsUsed, st.SlotsTotal)
	if res.previous > 0 && res.previous != st.Revision {
		out.Printf("Changed since your last visit (revision %d)\n", res.previous)
	}
	out.Println()
}

// renderView prints the grid; cells shrink to fit width
func renderView(out iocli.IO, v session.View, width int) {
	if len(v.Slots) == 0 {
		out.Println("(empty)")
		return
	}

	cols := max(v.Columns, 1)
	cell := width/cols - 1
	if cell < minCellWidth {
		cols = max(width/(minCellWidth+1), 1)
		cell = minCellWidth
	}
	cell = min(cell, maxCellWidth)

	var line strings.Builder
	for i, s := range v.Slots {
		line.WriteString(fitCell(cellText(i, s), cell))
		if (i+1)%cols == 0 || i == len(v.Slots)-1 {
			out.Println(strings.TrimRight(line.String(), " "))
			line.Reset()
			continue
		}
		line.WriteByte(' ')
	}
}

func cellText(i int, s session.Slot) string {
	if s.Empty() {
		return fmt.Sprintf("%d:-", i)
	}
	return fmt.Sprintf("%d:%s x%d", i, s.DisplayName, s.Amount)
}

func fitCell(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n > width {
		r := []rune(text)
		return string(r[:width-1]) + "…"
	}
	return text + strings.Repeat(" ", width-n)
}
