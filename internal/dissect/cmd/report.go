package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"dissect/internal/dissect/styles"
)

// buildReport assembles the markdown report for a loaded file.
func buildReport(path string, bin *binary) string {
	ld := bin.loader

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", path)
	fmt.Fprintf(&sb, "- digest: `%s`\n", bin.digest())
	fmt.Fprintf(&sb, "- format: %s\n", ld.Name())
	fmt.Fprintf(&sb, "- processor: %s (%d-bit)\n", ld.Processor(), ld.Bits())
	fmt.Fprintf(&sb, "- entry: `%x`\n", ld.Entry())
	fmt.Fprintf(&sb, "- status: %s\n", ld.Status())

	if segs := ld.Segments(); len(segs) > 0 {
		sb.WriteString("\n## Segments\n\n")
		sb.WriteString("| name | address | end | type |\n")
		sb.WriteString("|------|---------|-----|------|\n")
		for _, seg := range segs {
			fmt.Fprintf(&sb, "| %s | %x | %x | %s |\n", seg.Name, seg.Address, seg.EndAddress, seg.Type)
		}
	}

	syms := ld.Symbols().Snapshot()
	if len(syms) > 0 {
		sb.WriteString("\n## Symbols\n\n")
		sb.WriteString("| address | kind | name |\n")
		sb.WriteString("|---------|------|------|\n")
		for _, s := range syms {
			fmt.Fprintf(&sb, "| %x | %s | %s |\n", s.Address, s.Kind, s.Name)
		}
	}

	if problems := ld.Problems(); len(problems) > 0 {
		sb.WriteString("\n## Problems\n\n")
		for _, p := range problems {
			fmt.Fprintf(&sb, "- %v\n", p)
		}
	}

	return sb.String()
}

var reportCmd = &cobra.Command{
	Use:   "report [file]",
	Short: "Render a markdown report of the loaded file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := openBinary(args[0])
		if err != nil {
			return err
		}
		markdown := buildReport(args[0], bin)

		// Raw markdown when piped, rendered when on a terminal.
		if !term.IsTerminal(os.Stdout.Fd()) {
			fmt.Print(markdown)
			return nil
		}

		width, _, err := term.GetSize(os.Stdout.Fd())
		if err != nil || width <= 0 {
			width = 80
		}
		rendered, err := styles.Renderer(width - 2).Render(markdown)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Print(rendered)
		return nil
	},
}
