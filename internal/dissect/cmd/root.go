package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"dissect/internal/dissect/log"
	"dissect/internal/dissect/styles"
	"dissect/internal/ui/colorize"
)

type viewMode int

const (
	viewOverview viewMode = iota
	viewSymbols
	viewListing
)

type symbolItem struct {
	address    uint64
	name       string
	kind       string
	filterTerm string
}

func (i symbolItem) Title() string       { return fmt.Sprintf("%x  %s", i.address, i.name) }
func (i symbolItem) Description() string { return "" }
func (i symbolItem) FilterValue() string { return i.filterTerm }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(symbolItem)
	if !ok {
		return
	}

	var addrStyle lipgloss.Style
	var indicator string
	if index == m.Index() {
		indicator = ">"
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	} else {
		indicator = " "
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	}

	kindStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("108"))

	fmt.Fprintf(w, " %s  %s  %s %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%x", i.address)),
		kindStyle.Render(fmt.Sprintf("%-7s", i.kind)),
		i.name)
}

// Message types
type loadedMsg struct {
	bin *binary
	err error
}

type digestMsg struct {
	digest string
}

func loadBinaryCmd(path string) tea.Cmd {
	return func() tea.Msg {
		bin, err := openBinary(path)
		return loadedMsg{bin: bin, err: err}
	}
}

func digestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		bin, err := openBinary(path)
		if err != nil {
			return digestMsg{digest: ""}
		}
		return digestMsg{digest: bin.digest()}
	}
}

type model struct {
	viewport    viewport.Model
	symbolsList list.Model
	listingView viewport.Model
	spinner     spinner.Model
	mode        viewMode
	filepath    string
	digest      string
	bin         *binary
	loadErr     error
	loading     bool
	width       int
	height      int
}

func NewModel(filepath string) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	symbolsList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	symbolsList.SetShowStatusBar(false)
	symbolsList.SetFilteringEnabled(true)
	symbolsList.Title = "Symbols"
	symbolsList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	symbolsList.SetShowHelp(true)

	lv := viewport.New()
	lv.SetWidth(80)
	lv.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	m := model{
		viewport:    vp,
		symbolsList: symbolsList,
		listingView: lv,
		spinner:     s,
		mode:        viewOverview,
		filepath:    filepath,
		loading:     true,
		width:       80,
		height:      24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		loadBinaryCmd(m.filepath),
		digestCmd(m.filepath),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case loadedMsg:
		m.bin = msg.bin
		m.loadErr = msg.err
		m.loading = false
		if m.bin != nil {
			m.updateSymbolsList()
		}
		m.updateContent()
		return m, nil

	case digestMsg:
		m.digest = msg.digest
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.symbolsList.SetWidth(msg.Width)
			m.symbolsList.SetHeight(msg.Height - 2)
			m.listingView.SetWidth(msg.Width)
			m.listingView.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		if m.mode == viewSymbols && m.symbolsList.FilterState() == list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "o":
				m.mode = viewOverview
				return m, nil
			case "s":
				if m.bin != nil {
					m.mode = viewSymbols
				}
				return m, nil
			case "l":
				if m.bin != nil {
					m.showListing(m.bin.loader.Entry())
					m.mode = viewListing
				}
				return m, nil
			case "enter":
				if m.mode == viewSymbols && m.bin != nil {
					if selected := m.symbolsList.SelectedItem(); selected != nil {
						if sym, ok := selected.(symbolItem); ok {
							m.showListing(sym.address)
							m.mode = viewListing
						}
					}
				}
				return m, nil
			case "tab":
				switch m.mode {
				case viewOverview:
					if m.bin != nil {
						m.mode = viewSymbols
					}
				case viewSymbols:
					if m.bin != nil {
						m.showListing(m.bin.loader.Entry())
					}
					m.mode = viewListing
				case viewListing:
					m.mode = viewOverview
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewSymbols:
		m.symbolsList, cmd = m.symbolsList.Update(msg)
	case viewListing:
		m.listingView, cmd = m.listingView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewSymbols:
		content = m.symbolsList.View()
	case viewListing:
		content = m.listingView.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch m.mode {
	case viewSymbols:
		menu = " Enter: view listing • O: overview • L: listing • Tab: cycle • Q: quit "
	case viewListing:
		menu = " O: overview • S: symbols • Tab: cycle • Q: quit "
	default:
		if m.bin != nil {
			menu = " S: symbols • L: listing • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m *model) updateContent() {
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	var markdown string
	if m.loadErr != nil {
		markdown = fmt.Sprintf("# Dissect\n\n```\n; %s\n```\n\n**Error:** %v", relPath, m.loadErr)
	} else if m.bin != nil {
		markdown = overviewMarkdown(relPath, m.bin, m.digest)
	} else {
		markdown = fmt.Sprintf("# Dissect\n\n```\n; %s\n```", relPath)
	}

	if m.loading {
		markdown += fmt.Sprintf("\n\n%s Loading...", m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.Renderer(width - 2)
	rendered, _ := renderer.Render(markdown)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) updateSymbolsList() {
	syms := m.bin.loader.Symbols().Snapshot()
	items := make([]list.Item, 0, len(syms))
	for _, s := range syms {
		items = append(items, symbolItem{
			address:    s.Address,
			name:       s.Name,
			kind:       s.Kind.String(),
			filterTerm: fmt.Sprintf("%x %s %s", s.Address, s.Kind, s.Name),
		})
	}
	m.symbolsList.SetItems(items)
	m.symbolsList.Title = fmt.Sprintf("Symbols (%d total)", len(syms))
}

func (m *model) showListing(addr uint64) {
	text, err := m.bin.listing(addr, 64)
	if err != nil {
		m.listingView.SetContent(fmt.Sprintf("cannot disassemble %x: %v", addr, err))
		return
	}

	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString(colorize.InstructionLine(line))
		sb.WriteString("\n")
	}
	m.listingView.SetContent(strings.TrimSuffix(sb.String(), "\n"))
	m.listingView.GotoTop()
}

// overviewMarkdown builds the overview panel shared by the TUI and the
// non-interactive root output.
func overviewMarkdown(relPath string, bin *binary, digest string) string {
	ld := bin.loader

	var lines []string
	dir := pathpkg.Dir(relPath)
	base := pathpkg.Base(relPath)
	if dir != "." {
		lines = append(lines, fmt.Sprintf("; %s/", dir))
	}
	lines = append(lines, fmt.Sprintf("; %s", base))
	if digest != "" {
		lines = append(lines, fmt.Sprintf("; %s", digest))
	}
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("; format    %s", ld.Name()))
	lines = append(lines, fmt.Sprintf("; processor %s (%d-bit)", ld.Processor(), ld.Bits()))
	lines = append(lines, fmt.Sprintf("; entry     %x", ld.Entry()))
	lines = append(lines, fmt.Sprintf("; status    %s", ld.Status()))

	markdown := fmt.Sprintf("# Dissect\n\n```\n%s\n```", strings.Join(lines, "\n"))

	if segs := ld.Segments(); len(segs) > 0 {
		markdown += "\n\n## Segments\n\n```\n"
		for _, seg := range segs {
			markdown += fmt.Sprintf("%-8s %x-%x  %s\n", seg.Name, seg.Address, seg.EndAddress, seg.Type)
		}
		markdown += "```"
	}

	if problems := ld.Problems(); len(problems) > 0 {
		markdown += "\n\n## Problems\n\n"
		for _, p := range problems {
			markdown += fmt.Sprintf("- %v\n", p)
		}
	}

	return markdown
}

func runNoTUI(path string) error {
	bin, err := openBinary(path)
	if err != nil {
		return err
	}

	ld := bin.loader
	fmt.Printf("file:      %s\n", path)
	fmt.Printf("digest:    %s\n", bin.digest())
	fmt.Printf("format:    %s\n", ld.Name())
	fmt.Printf("processor: %s (%d-bit)\n", ld.Processor(), ld.Bits())
	fmt.Printf("entry:     %x\n", ld.Entry())
	fmt.Printf("status:    %s\n", ld.Status())
	fmt.Printf("symbols:   %d\n", ld.Symbols().Len())
	for _, p := range ld.Problems() {
		fmt.Printf("problem:   %v\n", p)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(reportCmd)
}

var rootCmd = &cobra.Command{
	Use:   "dissect [file]",
	Short: "Terminal-based binary inspection tool",
	Long: `Dissect loads an executable image, recovers its segments and symbols,
and provides an interactive TUI for exploring the result.`,
	Example: `
# Run in interactive mode on a file
dissect /path/to/binary.exe

# Print a summary without the TUI
dissect -n /path/to/binary.exe
  `,
	Args: cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		absPath, err := pathpkg.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %v", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
			os.Setenv("DISSECT_NO_COLOR", "1")
		}
		if noTUI {
			os.Setenv("DISSECT_NO_COLOR", "1")
			return runNoTUI(absPath)
		}

		program := tea.NewProgram(
			NewModel(absPath),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

func Execute() {
	// Bypass fang's markdown rendering for plain and piped output.
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" {
			noTUI = true
			break
		}
	}
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
