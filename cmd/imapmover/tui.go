package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	lipgloss "github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/pepperpark/imapmover/internal/syncer"
)

type barOp int

const (
	barOpen barOp = iota
	barDescribe
	barReset
	barUpdate
	barPostfix
	barClose
)

// barMsg carries one progress report from the sync goroutine to the UI.
type barMsg struct {
	id   int
	op   barOp
	text string
	n    int64
}

type tickMsg time.Time

type doneMsg struct{ err error }

type barState struct {
	desc    string
	postfix string
	total   int64
	done    int64
	bytes   bool
	closed  bool
	// Smoothed ETA
	emaRate  float64 // units/sec (EMA)
	lastDone int64
	lastAt   time.Time
	started  time.Time
}

type model struct {
	cancel   context.CancelFunc
	order    []int
	bars     map[int]*barState
	spinner  spinner.Model
	bar      progress.Model
	err      error
	finished bool
}

func newModel(cancel context.CancelFunc) *model {
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	return &model{cancel: cancel, bars: map[int]*barState{}, spinner: s, bar: bar}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}
	case doneMsg:
		m.err = msg.err
		m.finished = true
		return m, tea.Quit
	case barMsg:
		m.apply(msg)
		return m, nil
	case tickMsg:
		for _, b := range m.bars {
			b.updateEMARate()
		}
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) apply(msg barMsg) {
	if msg.op == barOpen {
		now := time.Now()
		m.order = append(m.order, msg.id)
		m.bars[msg.id] = &barState{
			desc:    msg.text,
			bytes:   msg.text == syncer.MessageDataDescription,
			started: now,
			lastAt:  now,
		}
		return
	}
	b, ok := m.bars[msg.id]
	if !ok {
		return
	}
	switch msg.op {
	case barDescribe:
		b.desc, b.postfix = msg.text, ""
	case barReset:
		now := time.Now()
		b.total, b.done = msg.n, 0
		b.emaRate, b.lastDone, b.lastAt, b.started = 0, 0, now, now
	case barUpdate:
		b.done += msg.n
	case barPostfix:
		b.postfix = msg.text
	case barClose:
		b.closed = true
	}
}

func (m *model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("imapmover")
	var s strings.Builder
	s.WriteString(title + "\n\nPress q to quit\n\n")
	for _, id := range m.order {
		b := m.bars[id]
		if b.closed {
			continue
		}
		line := fmt.Sprintf("%s %s %s   %s", m.spinner.View(), b.desc, b.counter(), b.formatETA())
		if b.postfix != "" {
			line += "  " + lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(b.postfix)
		}
		s.WriteString(line + "\n")
		s.WriteString(m.bar.ViewAs(b.percent()) + "\n\n")
	}
	if m.finished && m.err != nil && !errors.Is(m.err, context.Canceled) {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("Error: " + m.err.Error()))
		s.WriteString("\n")
	}
	return s.String()
}

func (b *barState) percent() float64 {
	if b.total <= 0 {
		return 0
	}
	return math.Min(1, float64(b.done)/float64(b.total))
}

func (b *barState) counter() string {
	if b.bytes {
		return humanReadableSize(b.done) + "/" + humanReadableSize(b.total)
	}
	return fmt.Sprintf("%d/%d", b.done, b.total)
}

func (b *barState) formatETA() string {
	if b.total == 0 {
		return "ETA --"
	}
	remaining := b.total - b.done
	if remaining <= 0 {
		return "ETA 0s"
	}
	// Prefer smoothed rate if available; fallback to average rate
	rate := b.emaRate
	if rate <= 0.01 {
		elapsed := time.Since(b.started)
		if elapsed <= 0 {
			return "ETA --"
		}
		rate = float64(b.done) / elapsed.Seconds()
	}
	if rate <= 0.01 {
		return "ETA --"
	}
	secs := float64(remaining) / rate
	if secs < 1 {
		return "ETA <1s"
	}
	d := time.Duration(secs) * time.Second
	if d > 99*time.Hour {
		return "ETA >99h"
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		mrem := int((d - time.Duration(h)*time.Hour) / time.Minute)
		return fmt.Sprintf("ETA %dh%dm", h, mrem)
	}
	if d >= time.Minute {
		return fmt.Sprintf("ETA %dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("ETA %ds", int(d.Seconds()))
}

// updateEMARate updates the EMA of the processing rate based on deltas since the last tick.
func (b *barState) updateEMARate() {
	now := time.Now()
	dt := now.Sub(b.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	inst := float64(b.done-b.lastDone) / dt
	// half-life ~3s
	alpha := 1 - math.Exp(-math.Ln2*dt/3.0)
	if b.emaRate == 0 {
		b.emaRate = inst
	} else {
		b.emaRate = alpha*inst + (1-alpha)*b.emaRate
	}
	b.lastDone = b.done
	b.lastAt = now
}

// sender delivers messages to a tea.Program.
type sender interface {
	Send(msg tea.Msg)
}

// teaProgress forwards syncer progress reports to the UI.
type teaProgress struct {
	p  sender
	id int
}

func teaFactory(p sender) syncer.ProgressFactory {
	var mu sync.Mutex
	next := 0
	return func(desc string) syncer.Progress {
		mu.Lock()
		next++
		id := next
		mu.Unlock()
		p.Send(barMsg{id: id, op: barOpen, text: desc})
		return &teaProgress{p: p, id: id}
	}
}

func (t *teaProgress) SetDescription(desc string) {
	t.p.Send(barMsg{id: t.id, op: barDescribe, text: desc})
}

func (t *teaProgress) Reset(total int64) { t.p.Send(barMsg{id: t.id, op: barReset, n: total}) }
func (t *teaProgress) Update(n int64)    { t.p.Send(barMsg{id: t.id, op: barUpdate, n: n}) }

func (t *teaProgress) SetPostfix(postfix string) {
	t.p.Send(barMsg{id: t.id, op: barPostfix, text: postfix})
}

func (t *teaProgress) Close() error {
	t.p.Send(barMsg{id: t.id, op: barClose})
	return nil
}

// runTUI runs the sync with a Bubble Tea progress display. Quitting the UI
// cancels the sync; a UI failure leaves the sync running without display.
func runTUI(ctx context.Context, run func(context.Context, syncer.ProgressFactory) (*syncer.Summary, error)) (*syncer.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(cancel)
	p := tea.NewProgram(m)

	var (
		g   errgroup.Group
		sum *syncer.Summary
	)
	g.Go(func() error {
		var err error
		sum, err = run(ctx, teaFactory(p))
		p.Send(doneMsg{err: err})
		return err
	})
	g.Go(func() error {
		_, err := p.Run()
		// Release any pending Send once the display is gone.
		p.Kill()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Printf("TUI failed: %v", err)
		}
		return nil
	})
	err := g.Wait()
	return sum, err
}
