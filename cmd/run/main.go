package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	modrunner "github.com/wasmkit/modrunner"
	"github.com/wasmkit/modrunner/interp"
	"github.com/wasmkit/modrunner/wasm"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)

	funcNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#90EE90"))

	trapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to wasm file")
		funcName    = flag.String("func", "", "Export to call (default: main, or caller with -asm)")
		funcIndex   = flag.Int("index", -1, "Interpret this function index instead of an export")
		mode        = flag.String("mode", "compiled", "Execution mode: compiled or interpreted")
		asmJS       = flag.Bool("asm", false, "Treat the module as an asm.js translation")
		argsStr     = flag.String("args", "", "Arguments (comma-separated numbers)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-mode compiled|interpreted] [-args 1,2]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -index <n> [-args 1,2]  (interpret by index)")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*wasmFile, *asmJS); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *mode, *argsStr, *funcIndex, *asmJS, *list, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, modeStr, argsStr string, funcIndex int, asmJS, listOnly, verbose bool) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	log := zap.NewNop()
	if verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	h, err := modrunner.NewWithLogger(ctx, log)
	if err != nil {
		return fmt.Errorf("create harness: %w", err)
	}
	defer h.Close(ctx)

	origin := wasm.OriginWasm
	if asmJS {
		origin = wasm.OriginAsmJS
	}
	m, err := h.DecodeModule(data, origin)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", headerStyle.Render("Module:"), wasmFile)
	fmt.Printf("Origin: %s\n", m.Origin)
	fmt.Printf("Functions: %d\n", m.NumFunctions())
	fmt.Printf("Exports: %d\n", len(m.Exports))

	fmt.Printf("\nExported functions:\n")
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		fmt.Printf("  %s\n", formatExport(m, exp))
	}

	if listOnly {
		return nil
	}

	if funcIndex >= 0 {
		return runInterpretByIndex(h, m, uint32(funcIndex), argsStr)
	}

	if funcName == "" {
		funcName = "main"
		if asmJS {
			funcName = "caller"
		}
	}

	var execMode modrunner.Mode
	switch modeStr {
	case "compiled":
		execMode = modrunner.ModeCompiled
	case "interpreted":
		execMode = modrunner.ModeInterpreted
	default:
		return fmt.Errorf("unknown mode %q", modeStr)
	}

	if argsStr != "" && execMode == modrunner.ModeCompiled {
		return runCompiledWithArgs(ctx, h, m, funcName, argsStr, asmJS)
	}

	out, err := h.Execute(ctx, m, execMode, funcName)
	if err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("\nFailed: %v", err)))
		return nil
	}
	printOutcome(funcName, out)
	return nil
}

func runCompiledWithArgs(ctx context.Context, h *modrunner.Harness, m *wasm.Module, funcName, argsStr string, asmJS bool) error {
	idx, ok := exportIndex(m, funcName)
	if !ok {
		return fmt.Errorf("no such export %q", funcName)
	}
	ft := m.GetFuncType(idx)
	args, err := parseCallArgs(ft, argsStr)
	if err != nil {
		return err
	}

	inst, err := h.Instantiate(ctx, m)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	v, err := h.CallExportedFunction(ctx, inst, funcName, args, asmJS)
	if err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("\nFailed: %v", err)))
		return nil
	}
	printOutcome(funcName, modrunner.Outcome{Value: v})
	return nil
}

func runInterpretByIndex(h *modrunner.Harness, m *wasm.Module, funcIndex uint32, argsStr string) error {
	ft := m.GetFuncType(funcIndex)
	if ft == nil {
		return fmt.Errorf("function index %d out of range", funcIndex)
	}
	args, err := parseInterpArgs(ft, argsStr)
	if err != nil {
		return err
	}

	v, err := h.Interpret(m, funcIndex, args)
	if err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("\nFailed: %v", err)))
		return nil
	}
	name := fmt.Sprintf("function %d", funcIndex)
	printOutcome(name, modrunner.Outcome{Value: v, Trapped: v == modrunner.TrapValue})
	return nil
}

func printOutcome(name string, out modrunner.Outcome) {
	if out.Trapped || out.Value == modrunner.TrapValue {
		fmt.Printf("\n%s %s\n", trapStyle.Render("Trapped:"), name)
		return
	}
	fmt.Printf("\n%s = %s\n",
		funcNameStyle.Render(name),
		resultValueStyle.Render(strconv.FormatInt(int64(out.Value), 10)))
}

func exportIndex(m *wasm.Module, name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == wasm.KindFunc {
			return exp.Idx, true
		}
	}
	return 0, false
}

func formatExport(m *wasm.Module, exp wasm.Export) string {
	ft := m.GetFuncType(exp.Idx)
	if ft == nil {
		return exp.Name
	}
	params := make([]string, len(ft.Params))
	for i, p := range ft.Params {
		params[i] = typeNameStyle.Render(p.String())
	}
	result := ""
	if len(ft.Results) > 0 {
		result = " -> " + typeNameStyle.Render(ft.Results[0].String())
	}
	return funcNameStyle.Render(exp.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func splitArgs(argsStr string) []string {
	if argsStr == "" {
		return nil
	}
	parts := strings.Split(argsStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseCallArgs converts textual arguments to the raw form the engine
// call ABI expects, guided by the function signature.
func parseCallArgs(ft *wasm.FuncType, argsStr string) ([]uint64, error) {
	parts := splitArgs(argsStr)
	if len(parts) != len(ft.Params) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(ft.Params), len(parts))
	}
	args := make([]uint64, len(parts))
	for i, p := range parts {
		switch ft.Params[i] {
		case wasm.ValI32:
			v, err := strconv.ParseInt(p, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = uint64(uint32(int32(v)))
		case wasm.ValI64:
			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = uint64(v)
		case wasm.ValF32:
			v, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = uint64(math.Float32bits(float32(v)))
		case wasm.ValF64:
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = math.Float64bits(v)
		}
	}
	return args, nil
}

// parseInterpArgs converts textual arguments to typed interpreter
// values.
func parseInterpArgs(ft *wasm.FuncType, argsStr string) ([]interp.Value, error) {
	parts := splitArgs(argsStr)
	if len(parts) != len(ft.Params) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(ft.Params), len(parts))
	}
	args := make([]interp.Value, len(parts))
	for i, p := range parts {
		switch ft.Params[i] {
		case wasm.ValI32:
			v, err := strconv.ParseInt(p, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = interp.I32Value(int32(v))
		case wasm.ValI64:
			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = interp.I64Value(v)
		case wasm.ValF32:
			v, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = interp.F32Value(float32(v))
		case wasm.ValF64:
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = interp.F64Value(v)
		}
	}
	return args, nil
}
