// Copyright 2023 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/ssh"

	"github.com/binkynet/MotorWorker/pkg/service/motors"
)

const (
	reloadInterval = time.Second / 2
	commandTimeout = time.Second * 2
	fullSpeed      = 255
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// UI builds a console for every SSH session.
type UI struct {
	motors motors.Service
}

// New creates a UI that controls the given motors.
func New(motorService motors.Service) *UI {
	return &UI{motors: motorService}
}

// Handler creates the model of a single SSH session.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := s.Pty()
	r := NewRoot(u.motors)
	r.term = pty.Term
	r.width = pty.Window.Width
	r.height = pty.Window.Height
	r.viewPort = newViewPort(r.width, r.listHeight())
	return r, []tea.ProgramOption{tea.WithAltScreen()}
}

// Root is the model of the motor console.
type Root struct {
	motors   motors.Service
	term     string
	width    int
	height   int
	selected int
	statuses []motors.Status
	lastErr  string
	viewPort viewport.Model
}

var _ tea.Model = Root{}

// NewRoot creates the root model for the given motors.
func NewRoot(motorService motors.Service) Root {
	r := Root{
		motors:   motorService,
		viewPort: newViewPort(80, 20),
	}
	r.statuses = loadStatuses(motorService)
	return r
}

// Init is the first function that will be called. It returns an optional
// initial command. To not perform an initial command return nil.
func (r Root) Init() tea.Cmd {
	return doReloadStatuses(r.motors)
}

// Update is called when a message is received. Use it to inspect messages
// and, in response, update the model and/or send a command.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case statusesMsg:
		r.statuses = msg
		if r.selected >= len(r.statuses) {
			r.selected = max(len(r.statuses)-1, 0)
		}
		cmds = append(cmds, doReloadStatuses(r.motors))
	case commandResultMsg:
		r.lastErr = ""
		if msg.err != nil {
			r.lastErr = msg.err.Error()
		}
		r.statuses = loadStatuses(r.motors)
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		r.viewPort.Width = r.width
		r.viewPort.Height = r.listHeight()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return r, tea.Quit
		case "up", "k":
			if r.selected > 0 {
				r.selected--
			}
		case "down", "j":
			if r.selected < len(r.statuses)-1 {
				r.selected++
			}
		case "e":
			if st, ok := r.current(); ok {
				cmds = append(cmds, r.doCommand(func(ctx context.Context) error {
					if st.Enabled {
						return r.motors.Disable(ctx, st.ID)
					}
					return r.motors.Enable(ctx, st.ID)
				}))
			}
		case "d":
			if st, ok := r.current(); ok {
				cmds = append(cmds, r.doCommand(func(ctx context.Context) error {
					return r.motors.SetDirection(ctx, st.ID, !st.Forward)
				}))
			}
		case "s", " ":
			if st, ok := r.current(); ok {
				speed := uint8(fullSpeed)
				if st.Speed > 0 {
					speed = 0
				}
				cmds = append(cmds, r.doCommand(func(ctx context.Context) error {
					return r.motors.SetSpeed(ctx, st.ID, speed)
				}))
			}
		}
	}

	r.viewPort.SetContent(r.listView())
	r.scrollToSelected()
	var cmd tea.Cmd
	r.viewPort, cmd = r.viewPort.Update(msg)
	cmds = append(cmds, cmd)

	return r, tea.Batch(cmds...)
}

// scrollToSelected keeps the selected motor inside the viewport.
func (r *Root) scrollToSelected() {
	if r.selected < r.viewPort.YOffset {
		r.viewPort.SetYOffset(r.selected)
	} else if r.selected >= r.viewPort.YOffset+r.viewPort.Height {
		r.viewPort.SetYOffset(r.selected - r.viewPort.Height + 1)
	}
}

// View renders the program's UI, which is just a string. The view is
// rendered after every Update.
func (r Root) View() string {
	s := r.headerView()
	r.viewPort.SetContent(r.listView())
	s += r.viewPort.View() + "\n"
	if r.lastErr != "" {
		s += errorStyle.Render(r.lastErr) + "\n"
	}
	s += dimStyle.Render("up/down - Select, e - Enable/disable, d - Direction, s - Start/stop, q - Disconnect") + "\n"
	return s
}

func (r Root) headerView() string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		headerStyle.Render("Welcome to BinkyNet Motor worker!"),
		" ",
		dimStyle.Render(fmt.Sprintf("%d motors", len(r.statuses))),
	) + "\n"
}

// newViewPort creates the viewport of the motor list.
// Its key bindings are cleared since keys select motors.
func newViewPort(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.KeyMap = viewport.KeyMap{}
	return vp
}

func (r Root) listHeight() int {
	return max(r.height-lipgloss.Height(r.headerView())-2, 1)
}

func (r Root) listView() string {
	if len(r.statuses) == 0 {
		return dimStyle.Render("No motors configured")
	}
	lines := make([]string, 0, len(r.statuses))
	for i, st := range r.statuses {
		line := formatStatus(st)
		if i == r.selected {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r Root) current() (motors.Status, bool) {
	if r.selected < 0 || r.selected >= len(r.statuses) {
		return motors.Status{}, false
	}
	return r.statuses[r.selected], true
}

// formatStatus renders a single motor status line.
func formatStatus(st motors.Status) string {
	if !st.Configured {
		return fmt.Sprintf("%-12s %s/%d  not configured", st.ID, st.Driver, st.Channel)
	}
	power := "off"
	if st.Enabled {
		power = "on"
	}
	direction := "forward"
	if !st.Forward {
		direction = "reverse"
	}
	return fmt.Sprintf("%-12s %s/%d  power=%-3s speed=%-3d %s", st.ID, st.Driver, st.Channel, power, st.Speed, direction)
}

type statusesMsg []motors.Status

type commandResultMsg struct {
	err error
}

func loadStatuses(motorService motors.Service) []motors.Status {
	ids := motorService.MotorIDs()
	result := make([]motors.Status, 0, len(ids))
	for _, id := range ids {
		if st, err := motorService.Status(id); err == nil {
			result = append(result, st)
		}
	}
	return result
}

func doReloadStatuses(motorService motors.Service) tea.Cmd {
	return tea.Tick(reloadInterval, func(t time.Time) tea.Msg {
		return statusesMsg(loadStatuses(motorService))
	})
}

func (r Root) doCommand(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandResultMsg{err: op(ctx)}
	}
}
