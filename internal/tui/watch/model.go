// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     watch
// Description: Live view of the backends a balanced client picks
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package watch shows, while the load-balancer sample runs, which backend
// answered every call and how the calls spread across the backends.
package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/msto63/grpc-sample/internal/samples"
)

const recentPicks = 8

// PickMsg carries one call result into the model
type PickMsg samples.Pick

// doneMsg reports that the pick source ended
type doneMsg struct{ err error }

// Model is the watch view
type Model struct {
	service string
	picks   <-chan samples.Pick
	done    <-chan error

	counts map[string]int
	total  int
	errors int
	recent []samples.Pick
	last   string
	err    error
	ended  bool

	spinner spinner.Model
	bar     progress.Model
	width   int
}

// NewModel creates a view reading picks until done delivers the result of
// the pick source
func NewModel(service string, picks <-chan samples.Pick, done <-chan error) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = latestStyle

	bar := progress.New(progress.WithSolidFill(string(colorSecondary)), progress.WithoutPercentage())
	bar.Width = 30

	return Model{
		service: service,
		picks:   picks,
		done:    done,
		counts:  map[string]int{},
		spinner: sp,
		bar:     bar,
	}
}

// Init starts the spinner and waits for the first pick
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForPick())
}

func (m Model) waitForPick() tea.Cmd {
	picks, done := m.picks, m.done
	return func() tea.Msg {
		select {
		case p, ok := <-picks:
			if !ok {
				return doneMsg{err: <-done}
			}
			return PickMsg(p)
		case err := <-done:
			return doneMsg{err: err}
		}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.counts = map[string]int{}
			m.total, m.errors = 0, 0
			m.recent = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 40; w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case PickMsg:
		m.record(samples.Pick(msg))
		if m.ended {
			return m, nil
		}
		return m, m.waitForPick()

	case doneMsg:
		m.ended = true
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) record(p samples.Pick) {
	m.total++
	if p.Err != nil {
		m.errors++
	} else {
		m.counts[p.Backend]++
		m.last = p.Backend
	}
	m.recent = append(m.recent, p)
	if len(m.recent) > recentPicks {
		m.recent = m.recent[len(m.recent)-recentPicks:]
	}
}

// Counts returns calls per backend
func (m Model) Counts() map[string]int {
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// View renders the model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Load balancer watch: " + m.service))
	b.WriteString("\n")

	status := m.spinner.View() + " watching"
	if m.ended {
		status = mutedStyle.Render("stopped")
		if m.err != nil {
			status = errorStyle.Render("stopped: " + m.err.Error())
		}
	}
	b.WriteString(fmt.Sprintf("%s  calls: %d  errors: %d\n\n", status, m.total, m.errors))

	backends := make([]string, 0, len(m.counts))
	for addr := range m.counts {
		backends = append(backends, addr)
	}
	sort.Strings(backends)

	var rows []string
	answered := m.total - m.errors
	for _, addr := range backends {
		share := 0.0
		if answered > 0 {
			share = float64(m.counts[addr]) / float64(answered)
		}
		name := backendStyle.Render(addr)
		if addr == m.last {
			name = backendStyle.Inherit(latestStyle).Render(addr)
		}
		rows = append(rows, fmt.Sprintf("%s %s %4d %5.1f%%", name, m.bar.ViewAs(share), m.counts[addr], share*100))
	}
	if len(rows) == 0 {
		rows = append(rows, mutedStyle.Render("waiting for the first call..."))
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n")

	b.WriteString(mutedStyle.Render("recent calls"))
	b.WriteString("\n")
	for i := len(m.recent) - 1; i >= 0; i-- {
		p := m.recent[i]
		line := p.At.Format("15:04:05.000") + "  "
		if p.Err != nil {
			line += errorStyle.Render(p.Err.Error())
		} else {
			line += p.Backend
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(helpStyle.Render("q: quit  r: reset counters"))
	return b.String()
}

// Run watches the balanced service until the user quits or ctx ends
func Run(ctx context.Context, opts samples.Options, balanced samples.Balanced) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	picks := make(chan samples.Pick)
	done := make(chan error, 1)
	go func() {
		err := samples.WatchLoadBalancer(ctx, opts, balanced, func(p samples.Pick) {
			select {
			case picks <- p:
			case <-ctx.Done():
			}
		})
		done <- err
	}()

	_, err := tea.NewProgram(NewModel(balanced.Service, picks, done), tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if ctx.Err() != nil {
		// canceled by a signal, not a failure of the view
		return nil
	}
	return err
}
