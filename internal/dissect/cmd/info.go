package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"
)

// fileInfo is the JSON output shape of the info command.
type fileInfo struct {
	File      string        `json:"file"`
	Digest    string        `json:"digest"`
	Format    string        `json:"format"`
	Processor string        `json:"processor"`
	Bits      int           `json:"bits"`
	Entry     string        `json:"entry"`
	Status    string        `json:"status"`
	Symbols   int           `json:"symbols"`
	Segments  []segmentInfo `json:"segments"`
	Problems  []string      `json:"problems,omitempty"`
}

type segmentInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	End     string `json:"end"`
	Offset  string `json:"offset"`
	Type    string `json:"type"`
}

func collectInfo(path string, bin *binary) fileInfo {
	ld := bin.loader
	info := fileInfo{
		File:      path,
		Digest:    bin.digest(),
		Format:    ld.Name(),
		Processor: ld.Processor(),
		Bits:      ld.Bits(),
		Entry:     fmt.Sprintf("%x", ld.Entry()),
		Status:    ld.Status().String(),
		Symbols:   ld.Symbols().Len(),
	}
	for _, seg := range ld.Segments() {
		info.Segments = append(info.Segments, segmentInfo{
			Name:    seg.Name,
			Address: fmt.Sprintf("%x", seg.Address),
			End:     fmt.Sprintf("%x", seg.EndAddress),
			Offset:  fmt.Sprintf("%x", seg.Offset),
			Type:    seg.Type.String(),
		})
	}
	for _, p := range ld.Problems() {
		info.Problems = append(info.Problems, p.Error())
	}
	return info
}

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show header and segment information",
	Long: `Parse the file headers and print format, processor, entry point,
and the recovered segment table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := openBinary(args[0])
		if err != nil {
			return err
		}
		info := collectInfo(args[0], bin)

		jsonOut, _ := cmd.Flags().GetBool("json")
		if jsonOut {
			bts, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal info: %w", err)
			}
			fmt.Println(string(bts))
			return nil
		}

		keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Width(10)
		fmt.Println(keyStyle.Render("file") + info.File)
		fmt.Println(keyStyle.Render("digest") + info.Digest)
		fmt.Println(keyStyle.Render("format") + info.Format)
		fmt.Println(keyStyle.Render("processor") + fmt.Sprintf("%s (%d-bit)", info.Processor, info.Bits))
		fmt.Println(keyStyle.Render("entry") + info.Entry)
		fmt.Println(keyStyle.Render("status") + info.Status)
		fmt.Println(keyStyle.Render("symbols") + fmt.Sprintf("%d", info.Symbols))

		if len(info.Segments) > 0 {
			fmt.Println()
			hdrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
			fmt.Println(hdrStyle.Render(fmt.Sprintf("%-8s %-10s %-10s %-8s %s", "name", "address", "end", "offset", "type")))
			for _, seg := range info.Segments {
				fmt.Printf("%-8s %-10s %-10s %-8s %s\n", seg.Name, seg.Address, seg.End, seg.Offset, seg.Type)
			}
		}
		for _, p := range info.Problems {
			fmt.Printf("problem: %s\n", p)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
