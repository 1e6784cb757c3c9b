package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/tasks"
)

const maxBarWidth = 60

// ConvertFunc runs a conversion, reporting on progress.
type ConvertFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.ConversionResult, error)

type progressMsg tasks.ProgressUpdate

type convertDoneMsg struct {
	result *models.ConversionResult
	err    error
}

// ConvertModel is a bubbletea model that runs one conversion and shows its progress and outcome.
type ConvertModel struct {
	ctx        context.Context
	cancel     context.CancelFunc
	run        ConvertFunc
	playlistID string

	progressChan chan tasks.ProgressUpdate
	doneChan     chan convertDoneMsg

	update     tasks.ProgressUpdate
	spinner    spinner.Model
	bar        progress.Model
	help       help.Model
	keys       keyMap
	result     *models.ConversionResult
	err        error
	done       bool
	showMisses bool
}

// NewConvertModel creates a model that converts playlistID with run when started.
func NewConvertModel(ctx context.Context, playlistID string, run ConvertFunc) *ConvertModel {
	ctx, cancel := context.WithCancel(ctx)
	return &ConvertModel{
		ctx:        ctx,
		cancel:     cancel,
		run:        run,
		playlistID: playlistID,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(Styles.ok)),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

func (m *ConvertModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Result returns the outcome once the conversion has finished. Quitting early reports [context.Canceled].
func (m *ConvertModel) Result() (*models.ConversionResult, error) {
	if !m.done {
		return nil, context.Canceled
	}
	return m.result, m.err
}

func (m *ConvertModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.misses) && m.done:
			m.showMisses = !m.showMisses
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.update = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case convertDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m *ConvertModel) View() string {
	if m.done {
		return m.renderResult()
	}
	return m.renderProgress()
}

func (m *ConvertModel) start() tea.Cmd {
	if m.progressChan != nil {
		return nil
	}
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan convertDoneMsg, 1)

	go func() {
		result, err := m.run(m.ctx, m.progressChan)
		m.doneChan <- convertDoneMsg{result: result, err: err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *ConvertModel) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			return <-doneChan
		}
		return progressMsg(update)
	}
}

func (m *ConvertModel) renderProgress() string {
	var b strings.Builder
	b.WriteString(Styles.Title(fmt.Sprintf("Converting playlist %s", m.playlistID)))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), PhaseLabel(m.update))
	if m.update.Phase == tasks.SearchTracks && m.update.Total > 0 {
		b.WriteString(m.bar.ViewAs(float64(m.update.Step) / float64(m.update.Total)))
		b.WriteString("\n")
	}
	if m.update.Message != "" {
		b.WriteString(Styles.Help(m.update.Message))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *ConvertModel) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.misses, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", Styles.Err(fmt.Sprintf("Conversion failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", Styles.Err("No result available"), helpView)
	}

	var b strings.Builder
	b.WriteString(Styles.Title(Styles.OK(fmt.Sprintf("✓ Converted %s", m.result.SourceName))))
	b.WriteString("\n")
	b.WriteString(Summary(m.result))

	if len(m.result.Unmatched) > 0 {
		b.WriteString("\n\n")
		b.WriteString(Styles.Warn(fmt.Sprintf("%d tracks had no match", len(m.result.Unmatched))))
		if m.showMisses {
			for _, t := range m.result.Unmatched {
				fmt.Fprintf(&b, "\n  • %s", t)
			}
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpView)
	return b.String()
}

// PhaseLabel describes an update in a few words.
func PhaseLabel(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.FetchSource:
		return "Fetching source playlist..."
	case tasks.CreatePlaylist:
		return "Creating playlist on YouTube Music..."
	case tasks.SearchTracks:
		return fmt.Sprintf("Searching tracks (%d/%d)", u.Step, u.Total)
	case tasks.AddTracks:
		return "Adding tracks..."
	case tasks.Done:
		return "Done"
	default:
		return "Starting..."
	}
}

// Summary renders the counts of a finished conversion.
func Summary(r *models.ConversionResult) string {
	rate := 0.0
	if r.Total > 0 {
		rate = float64(r.Matched) / float64(r.Total) * 100
	}
	return fmt.Sprintf("YouTube Music playlist: %s\nMatched: %d/%d (%.1f%%)", r.TargetPlaylistID, r.Matched, r.Total, rate)
}
