package viz

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/emsim-dev/emsim/internal/pipeline"
)

const historyCapacity = 600

type ProgressMsg pipeline.Progress

type doneMsg struct{ err error }

// LiveModel renders run progress as it streams in from the pipeline
// observer. The simulation runs in its own goroutine; the model only
// consumes updates.
type LiveModel struct {
	title    string
	updates  <-chan pipeline.Progress
	done     <-chan error
	last     pipeline.Progress
	history  []float64
	seen     int
	total    int
	started  time.Time
	finished bool
	err      error
}

func NewLiveModel(title string, total int, updates <-chan pipeline.Progress, done <-chan error) LiveModel {
	return LiveModel{
		title:   title,
		updates: updates,
		done:    done,
		total:   total,
		history: make([]float64, 0, historyCapacity),
		started: time.Now(),
	}
}

// Err reports the run error, if any, after the program exits.
func (m LiveModel) Err() error { return m.err }

func (m LiveModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case p, ok := <-m.updates:
			if !ok {
				return doneMsg{err: <-m.done}
			}
			return ProgressMsg(p)
		case err := <-m.done:
			return doneMsg{err: err}
		}
	}
}

func (m LiveModel) Init() tea.Cmd {
	return m.listen()
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case ProgressMsg:
		m.last = pipeline.Progress(msg)
		m.seen++
		if len(m.history) == historyCapacity {
			m.history = m.history[1:]
		}
		m.history = append(m.history, m.last.MeanIntensity)
		return m, m.listen()
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m LiveModel) View() string {
	s := HeaderStyle.Render(m.title) + "\n"

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.seen) / float64(m.total)
	}
	s += Field("progress", fmt.Sprintf("%s %d/%d", ProgressBar(frac, 40), m.seen, m.total)) + "\n"
	s += Field("elapsed", time.Since(m.started).Round(time.Millisecond).String()) + "\n"
	if m.last.NumFP > 0 {
		s += Field("configuration", fmt.Sprintf("%d of %d", m.last.FP+1, m.last.NumFP)) + "\n"
	}
	if m.last.Tag != "" {
		s += Field("series tag", TagStyle.Render(m.last.Tag)) + "\n"
	}

	if len(m.history) > 1 {
		s += GraphStyle.Render(asciigraph.Plot(m.history,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption("mean intensity"),
		)) + "\n"
	}

	if m.finished {
		if m.err != nil {
			s += "\n" + TagStyle.Render("failed: "+m.err.Error()) + "\n"
		} else {
			s += "\n" + DoneStyle.Render("run complete") + "\n"
		}
	} else {
		s += HelpStyle.Render("q: quit")
	}
	return PanelStyle.Render(s)
}
