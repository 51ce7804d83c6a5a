package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"dissect/internal/ui/colorize"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [file]",
	Short: "Disassemble from an address",
	Long: `Disassemble instructions starting at the given address, or at the
entry point when no address is given. Operands that resolve to known
symbols are printed by name.`,
	Example: `
# Disassemble from the entry point
dissect disasm /path/to/binary.exe

# Disassemble 32 instructions at an address
dissect disasm --addr 401000 --count 32 /path/to/binary.exe
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := openBinary(args[0])
		if err != nil {
			return err
		}

		addr := bin.loader.Entry()
		if addrFlag, _ := cmd.Flags().GetString("addr"); addrFlag != "" {
			addr, err = strconv.ParseUint(strings.TrimPrefix(addrFlag, "0x"), 16, 64)
			if err != nil {
				return fmt.Errorf("bad address %q: %v", addrFlag, err)
			}
		}
		count, _ := cmd.Flags().GetInt("count")

		text, err := bin.listing(addr, count)
		if err != nil {
			return err
		}

		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("DISSECT_NO_COLOR", "1")
		}
		for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
			fmt.Println(colorize.InstructionLine(line))
		}
		return nil
	},
}

func init() {
	disasmCmd.Flags().String("addr", "", "Start address (hex)")
	disasmCmd.Flags().IntP("count", "c", 32, "Maximum instructions to decode")
}
