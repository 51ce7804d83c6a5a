package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

type symbolJSON struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols [file]",
	Short: "List recovered symbols",
	Long: `List the symbols recovered from the file, sorted by address.
With a terminal attached this opens an interactive, filterable list.`,
	Example: `
# Browse symbols interactively
dissect symbols /path/to/binary.exe

# Only imports, plain output
dissect symbols --kind import /path/to/binary.exe | head
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := openBinary(args[0])
		if err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		jsonOut, _ := cmd.Flags().GetBool("json")
		syms := symbolRows(bin.loader.Symbols(), kind)

		if jsonOut {
			out := make([]symbolJSON, 0, len(syms))
			for _, s := range syms {
				out = append(out, symbolJSON{
					Address: fmt.Sprintf("%x", s.Address),
					Name:    s.Name,
					Kind:    s.Kind.String(),
				})
			}
			bts, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal symbols: %w", err)
			}
			fmt.Println(string(bts))
			return nil
		}

		// Plain listing when piped or when a kind filter is active.
		if !term.IsTerminal(os.Stdout.Fd()) || kind != "" {
			for _, s := range syms {
				fmt.Printf("%x  %-7s %s\n", s.Address, s.Kind, s.Name)
			}
			return nil
		}

		m := NewModel(args[0])
		m.mode = viewSymbols
		program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

func init() {
	symbolsCmd.Flags().String("kind", "", "Filter by kind (import, export, entry, function, data)")
	symbolsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
