package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/kass/go-mt-sites/internal/logger"
	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/config"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginTop(1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

type stage int

const (
	stageLoading stage = iota
	stageLoadComplete
	stageQuerying
	stageDone
	stageFailed
)

const maxRejectsShown = 5

type model struct {
	dir      string
	radiusKm float64

	stage           stage
	spinner         spinner.Model
	progress        progress.Model
	progressPercent float64

	catalog *catalog.Catalog
	report  *catalog.Report
	queries queryResult
	err     error

	width  int
	height int
}

type queryResult struct {
	center   *models.Site
	radius   []*models.Site
	nearest  []*models.Site
	surveys  map[string]int
	duration time.Duration
}

type progressMsg float64

type loadedMsg struct {
	catalog *catalog.Catalog
	report  *catalog.Report
}

type queriedMsg queryResult

type advanceMsg struct{}

type errMsg struct{ err error }

func initialModel(dir string, radiusKm float64) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		dir:      dir,
		radiusKm: radiusKm,
		stage:    stageLoading,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadCatalog(m.dir))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 10
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		m.progressPercent = float64(msg)
		return m, m.progress.SetPercent(float64(msg))

	case errMsg:
		m.err = msg.err
		m.stage = stageFailed
		return m, nil

	case loadedMsg:
		m.catalog = msg.catalog
		m.report = msg.report
		m.stage = stageLoadComplete
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return advanceMsg{} })

	case advanceMsg:
		if m.stage == stageLoadComplete {
			m.stage = stageQuerying
			return m, runQueries(m.catalog, m.radiusKm)
		}

	case queriedMsg:
		m.queries = queryResult(msg)
		m.stage = stageDone
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("MT Site Catalog Demo"))
	b.WriteString("\n\n")

	switch m.stage {
	case stageLoading:
		b.WriteString(subtitleStyle.Render("Loading Sites"))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + fmt.Sprintf(" Decoding and validating records in %s...\n\n", m.dir))
		b.WriteString(m.progress.ViewAs(m.progressPercent))

	case stageLoadComplete:
		b.WriteString(renderLoadStats(m.report))

	case stageQuerying:
		b.WriteString(renderLoadStats(m.report))
		b.WriteString(m.spinner.View() + " Running spatial queries...")

	case stageDone:
		b.WriteString(renderLoadStats(m.report))
		b.WriteString(renderQueries(m.queries, m.radiusKm))

	case stageFailed:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Press 'q' to quit"))

	return b.String()
}

func renderLoadStats(report *catalog.Report) string {
	stats := fmt.Sprintf(
		"✓ Loaded %s of %s files in %s\n"+
			"✓ Sites per second: %s\n"+
			"✓ Rejected: %s",
		statStyle.Render(fmt.Sprintf("%d", report.Loaded)),
		statStyle.Render(fmt.Sprintf("%d", report.Files)),
		statStyle.Render(report.Duration.String()),
		statStyle.Render(fmt.Sprintf("%.0f", float64(report.Loaded)/report.Duration.Seconds())),
		statStyle.Render(fmt.Sprintf("%d", len(report.Rejected))),
	)

	for i, r := range report.Rejected {
		if i == maxRejectsShown {
			stats += "\n" + dimStyle.Render(fmt.Sprintf("  … %d more", len(report.Rejected)-maxRejectsShown))
			break
		}
		stats += "\n" + errorStyle.Render(fmt.Sprintf("  ✗ %s: %s", r.Path, r.Reason))
	}

	return boxStyle.Render(successStyle.Render("Loading Complete!\n\n") + stats)
}

func renderQueries(q queryResult, radiusKm float64) string {
	if q.center == nil {
		return infoStyle.Render("The catalog is empty, nothing to query.")
	}

	var b strings.Builder
	b.WriteString(infoStyle.Render(fmt.Sprintf("Around %s (%.4f, %.4f):", q.center.ID, q.center.Location.Lat, q.center.Location.Lon)))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Sites within %s km: %s\n",
		statStyle.Render(fmt.Sprintf("%.0f", radiusKm)),
		statStyle.Render(fmt.Sprintf("%d", len(q.radius)))))

	b.WriteString("Nearest sites:\n")
	for _, s := range q.nearest {
		d := rtree.Distance(q.center.Location.Lat, q.center.Location.Lon, s.Location.Lat, s.Location.Lon)
		b.WriteString(successStyle.Render(fmt.Sprintf("• %-32s %8.2f km", s.ID, d)) + "\n")
	}

	b.WriteString("\nSites per survey:\n")
	surveys := lo.Keys(q.surveys)
	sort.Strings(surveys)
	for _, name := range surveys {
		b.WriteString(fmt.Sprintf("• %-24s %s\n", lo.Ternary(name == "", "(none)", name), statStyle.Render(fmt.Sprintf("%d", q.surveys[name]))))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("\nQueries took %s on %d CPU cores", q.duration, runtime.NumCPU())))

	return boxStyle.Render(b.String())
}

var program *tea.Program

func loadCatalog(dir string) tea.Cmd {
	return func() tea.Msg {
		c, report, err := catalog.Load(context.Background(), dir, catalog.Options{
			Progress: func(done, total int) {
				program.Send(progressMsg(float64(done) / float64(total)))
			},
		})
		if err != nil {
			return errMsg{err}
		}
		return loadedMsg{catalog: c, report: report}
	}
}

func runQueries(c *catalog.Catalog, radiusKm float64) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		sites := c.Sites()
		if len(sites) == 0 {
			return queriedMsg{}
		}

		center := sites[0]
		radius, err := c.Query(catalog.Filter{Center: center.Location, RadiusKm: radiusKm})
		if err != nil {
			return errMsg{err}
		}

		return queriedMsg{
			center:  center,
			radius:  radius,
			nearest: c.Index().NearestMatching(*center.Location, 5,
				func(s *models.Site) bool { return s.ID != center.ID }),
			surveys: lo.MapValues(lo.GroupBy(sites, func(s *models.Site) string { return s.Survey }),
				func(group []*models.Site, _ string) int { return len(group) }),
			duration: time.Since(start),
		}
	}
}

func main() {
	dir := flag.String("d", "data/sites", "Catalog directory")
	radiusKm := flag.Float64("r", 50, "Radius in km for the neighbourhood query")
	flag.Parse()

	// The TUI owns the terminal
	logger.Setup(config.Log{Level: "disabled"})

	program = tea.NewProgram(initialModel(*dir, *radiusKm))

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
