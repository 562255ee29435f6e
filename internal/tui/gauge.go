package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tuner/internal/note"
	"tuner/internal/pitch"
	"tuner/internal/tuner"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultGaugeWidth = 41
	inTuneCents       = 5
	closeCents        = 15
	// Amplitude bar spans -60 dBFS to 0 dBFS.
	meterFloorDB = -60.0
)

var (
	noteStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065"))

	idleNoteStyle = noteStyle.
			Background(lipgloss.Color("#555555"))

	inTuneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	closeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true)
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))

	quitKeys = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))
)

// ReadingSource supplies the latest reading. *tuner.Display implements it.
type ReadingSource interface {
	Load() (tuner.Reading, bool)
}

type tickMsg time.Time

// GaugeModel is the Bubble Tea model of the tuning gauge. It polls the
// reading source on every tick and never blocks the analysis loop.
type GaugeModel struct {
	source  ReadingSource
	refresh time.Duration

	reading tuner.Reading
	have    bool
	width   int
	meter   progress.Model
}

// NewGaugeModel creates a gauge reading from source every refresh.
func NewGaugeModel(source ReadingSource, refresh time.Duration) GaugeModel {
	if refresh <= 0 {
		refresh = 50 * time.Millisecond
	}
	meter := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	meter.Width = defaultGaugeWidth
	return GaugeModel{
		source:  source,
		refresh: refresh,
		width:   defaultGaugeWidth,
		meter:   meter,
	}
}

func (m GaugeModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh ticker.
func (m GaugeModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles ticks, resizes and the quit keys.
func (m GaugeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if r, ok := m.source.Load(); ok {
			m.reading, m.have = r, true
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		// Keep the needle scale odd so zero cents has its own cell.
		w := min(max(msg.Width-4, 11), 81)
		if w%2 == 0 {
			w--
		}
		m.width = w
		m.meter.Width = w
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the note, the cents needle and the input level.
func (m GaugeModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Tuner"))
	sb.WriteString("\n\n")

	if !m.have {
		sb.WriteString(dimStyle.Render("Waiting for input..."))
		sb.WriteString("\n\n")
		sb.WriteString(infoStyle.Render("q: Quit"))
		return sb.String()
	}

	r := m.reading
	if r.HasNote() {
		style := centsStyle(r.Reading)
		sb.WriteString(noteStyle.Render(r.Note))
		sb.WriteString("  ")
		sb.WriteString(style.Render(fmt.Sprintf("%+.1f cents", r.CentsOffset)))
		sb.WriteString("\n\n")
		sb.WriteString(renderNeedle(r.CentsOffset, m.width, style))
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%.2f Hz  confidence %.2f", r.FrequencyHz, r.Confidence)))
	} else {
		sb.WriteString(idleNoteStyle.Render("--"))
		sb.WriteString("  ")
		sb.WriteString(dimStyle.Render(statusText(r.Status)))
		sb.WriteString("\n\n")
		sb.WriteString(renderNeedle(math.NaN(), m.width, dimStyle))
		sb.WriteString("\n")
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.meter.ViewAs(levelPercent(r.AmplitudeRMS)))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

func statusText(s pitch.Status) string {
	switch s {
	case pitch.Ambiguous:
		return "unclear pitch"
	case pitch.OutOfRange:
		return "out of range"
	default:
		return "no signal"
	}
}

func centsStyle(r note.Reading) lipgloss.Style {
	switch {
	case r.InTune(inTuneCents):
		return inTuneStyle
	case r.InTune(closeCents):
		return closeStyle
	default:
		return offStyle
	}
}

// needlePosition maps cents in [-50, 50] to a cell in [0, width).
func needlePosition(cents float64, width int) int {
	cents = max(-50, min(50, cents))
	return int(math.Round((cents + 50) / 100 * float64(width-1)))
}

// renderNeedle draws a scale with the centre marked and the needle at
// cents. A NaN cents value draws the scale alone.
func renderNeedle(cents float64, width int, style lipgloss.Style) string {
	center := width / 2
	needle := -1
	if !math.IsNaN(cents) {
		needle = needlePosition(cents, width)
	}

	var sb strings.Builder
	sb.WriteString(dimStyle.Render("♭ "))
	for i := range width {
		switch {
		case i == needle:
			sb.WriteString(style.Render("█"))
		case i == center:
			sb.WriteString(dimStyle.Render("|"))
		default:
			sb.WriteString(dimStyle.Render("·"))
		}
	}
	sb.WriteString(dimStyle.Render(" ♯"))
	return sb.String()
}

// levelPercent converts an RMS level to the meter fill fraction.
func levelPercent(rms float64) float64 {
	if !(rms > 0) {
		return 0
	}
	db := 20 * math.Log10(rms)
	return max(0, min(1, (db-meterFloorDB)/-meterFloorDB))
}

// RunGauge shows the gauge until the user quits or ctx is cancelled.
func RunGauge(ctx context.Context, source ReadingSource, refresh time.Duration) error {
	p := tea.NewProgram(
		NewGaugeModel(source, refresh),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
