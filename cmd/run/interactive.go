package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	modrunner "github.com/wasmkit/modrunner"
	"github.com/wasmkit/modrunner/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type funcInfo struct {
	name       string
	resultType string
	idx        uint32
	params     []wasm.ValType
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	harness  *modrunner.Harness
	module   *wasm.Module
	filename string
	asmJS    bool
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	mode     modrunner.Mode
	state    modelState
}

func newInteractiveModel(filename string, asmJS bool) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		asmJS:    asmJS,
		mode:     modrunner.ModeCompiled,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err     error
	harness *modrunner.Harness
	module  *wasm.Module
	funcs   []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	h, err := modrunner.New(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}

	origin := wasm.OriginWasm
	if m.asmJS {
		origin = wasm.OriginAsmJS
	}
	mod, err := h.DecodeModule(data, origin)
	if err != nil {
		h.Close(ctx)
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, exp := range mod.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		ft := mod.GetFuncType(exp.Idx)
		if ft == nil {
			continue
		}
		fi := funcInfo{name: exp.Name, idx: exp.Idx, params: ft.Params}
		if len(ft.Results) > 0 {
			fi.resultType = ft.Results[0].String()
		}
		funcs = append(funcs, fi)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })

	return loadedMsg{harness: h, module: mod, funcs: funcs}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.harness != nil {
				m.harness.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "m":
			if m.state == stateSelectFunc {
				if m.mode == modrunner.ModeCompiled {
					m.mode = modrunner.ModeInterpreted
				} else {
					m.mode = modrunner.ModeCompiled
				}
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
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
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.harness = msg.harness
		m.module = msg.module
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
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
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	f := m.funcs[m.selected]
	ft := m.module.GetFuncType(f.idx)
	if ft == nil {
		return callResultMsg{err: fmt.Errorf("function %d has no type", f.idx)}
	}

	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	argsStr := strings.Join(values, ",")

	if m.mode == modrunner.ModeInterpreted {
		args, err := parseInterpArgs(ft, argsStr)
		if err != nil {
			return callResultMsg{err: err}
		}
		v, err := m.harness.Interpret(m.module, f.idx, args)
		if err != nil {
			return callResultMsg{err: err}
		}
		if v == modrunner.TrapValue {
			return callResultMsg{result: "trapped"}
		}
		return callResultMsg{result: fmt.Sprintf("%d", v)}
	}

	args, err := parseCallArgs(ft, argsStr)
	if err != nil {
		return callResultMsg{err: err}
	}
	inst, err := m.harness.Instantiate(ctx, m.module)
	if err != nil {
		return callResultMsg{err: err}
	}
	defer inst.Close(ctx)

	v, err := m.harness.CallExportedFunction(ctx, inst, f.name, args, m.asmJS)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%d", v)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.module == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Module Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("  [" + m.mode.String() + "]")
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString(errorStyle.Render("Module exports no functions."))
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • m toggle mode • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcNameStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeNameStyle.Render(f.params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcNameStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultValueStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f funcInfo) string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = typeNameStyle.Render(p.String())
	}
	result := ""
	if f.resultType != "" {
		result = " -> " + typeNameStyle.Render(f.resultType)
	}
	return funcNameStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(filename string, asmJS bool) error {
	p := tea.NewProgram(newInteractiveModel(filename, asmJS), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
