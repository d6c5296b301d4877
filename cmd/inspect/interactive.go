package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/managed"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err       error
	imageFile string
	settings  string

	sys      *managed.System
	asm      *managed.Assembly
	classes  []*managed.Class
	methods  []*managed.Method
	objects  map[*managed.Class]*managed.Object
	inputs   []textinput.Model
	result   string
	selected int
	selClass int
	focusIdx int
	state    modelState
}

func newInteractiveModel(imageFile, settings string) *interactiveModel {
	return &interactiveModel{
		imageFile: imageFile,
		settings:  settings,
		objects:   make(map[*managed.Class]*managed.Object),
		state:     stateSelectClass,
	}
}

type loadedMsg struct {
	err     error
	sys     *managed.System
	asm     *managed.Assembly
	classes []*managed.Class
}

type callResultMsg struct {
	err    error
	exc    *managed.Exception
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadImage
}

func (m *interactiveModel) loadImage() tea.Msg {
	ctx := context.Background()
	sys, asm, err := openSystem(ctx, m.imageFile, m.settings)
	if err != nil {
		return loadedMsg{err: err}
	}
	classes, err := asm.Classes(ctx)
	if err != nil {
		sys.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{sys: sys, asm: asm, classes: classes}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.sys != nil {
				m.sys.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 && (m.state == stateSelectClass || m.state == stateSelectMethod) {
				m.selected--
			}

		case "down", "j":
			switch m.state {
			case stateSelectClass:
				if m.selected < len(m.classes)-1 {
					m.selected++
				}
			case stateSelectMethod:
				if m.selected < len(m.methods)-1 {
					m.selected++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.classes) == 0 {
					break
				}
				m.selClass = m.selected
				m.methods = m.classes[m.selClass].Methods()
				m.selected = 0
				m.state = stateSelectMethod

			case stateSelectMethod:
				if len(m.methods) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.selected = 0
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
				m.selected = m.selClass
			case stateInputArgs:
				m.state = stateSelectMethod
				m.selected = 0
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.selected = 0
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sys = msg.sys
		m.asm = msg.asm
		m.classes = msg.classes

	case callResultMsg:
		m.err = msg.err
		if msg.exc != nil {
			m.result = "threw " + msg.exc.FullClassName() + ": " + msg.exc.Message
		} else {
			m.result = msg.result
		}
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	method := m.methods[m.selected]
	params := method.ParamTypes()
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = p.Name()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callMethod() tea.Msg {
	ctx := context.Background()
	class := m.classes[m.selClass]
	method := m.methods[m.selected]

	params := method.ParamTypes()
	args := make([]engine.Value, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), params[i])
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	if method.Static() {
		result, exc, err := method.InvokeStatic(ctx, args...)
		return callResultMsg{result: fmt.Sprintf("%v", result), exc: exc, err: err}
	}

	obj, ok := m.objects[class]
	if !ok {
		created, exc, err := class.CreateInstance(ctx, nil)
		if err != nil {
			return callResultMsg{err: err}
		}
		if exc != nil {
			return callResultMsg{exc: exc}
		}
		m.objects[class] = created
		obj = created
	}

	result, exc, err := obj.Invoke(ctx, method, args...)
	return callResultMsg{result: fmt.Sprintf("%v", result), exc: exc, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.classes) == 0 {
		return "Loading image..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Managed Inspector"))
	b.WriteString(" ")
	b.WriteString(m.imageFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString("Select a class:\n\n")
		for i, class := range m.classes {
			line := classStyle.Render(class.FullName())
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + class.FullName()))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateSelectMethod:
		class := m.classes[m.selClass]
		b.WriteString(fmt.Sprintf("Methods of %s:\n\n", classStyle.Render(class.FullName())))
		if len(m.methods) == 0 {
			b.WriteString(helpStyle.Render("  (no methods)"))
			b.WriteString("\n")
		}
		for i, method := range m.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatMethod(method)))
			} else {
				b.WriteString("  " + m.styledMethod(method))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		method := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", methodStyle.Render(method.FullName())))
		params := method.ParamTypes()
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(params[i].Name()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		method := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", methodStyle.Render(method.FullName())))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) styledMethod(method *managed.Method) string {
	var params []string
	for _, p := range method.ParamTypes() {
		params = append(params, typeStyle.Render(p.Name()))
	}
	sig := methodStyle.Render(method.Name()) + "(" + strings.Join(params, ", ") + ")"
	if !method.ReturnType().IsVoid() {
		sig += " -> " + typeStyle.Render(method.ReturnType().Name())
	}
	if method.Static() {
		sig = "static " + sig
	}
	return sig
}

func runInteractive(imageFile, settings string) error {
	p := tea.NewProgram(newInteractiveModel(imageFile, settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
