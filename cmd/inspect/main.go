package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/managed"
)

func main() {
	var (
		imageFile   = flag.String("image", "", "Path to managed image (wasm + .wit sidecar)")
		settings    = flag.String("settings", "", "Path to YAML settings file (optional)")
		invoke      = flag.String("invoke", "", "Method to call, as Namespace.Class::method")
		argStr      = flag.String("args", "", "Arguments for -invoke (comma-separated)")
		list        = flag.Bool("list", false, "List classes and members and exit")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *imageFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -image <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       inspect -image <file.wasm> -invoke Ns.Class::method [-args a,b]")
		fmt.Fprintln(os.Stderr, "       inspect -image <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			managed.SetLogger(log)
			engine.SetLogger(log)
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*imageFile, *settings); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*imageFile, *settings, *invoke, *argStr, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openSystem(ctx context.Context, imageFile, settingsFile string) (*managed.System, *managed.Assembly, error) {
	var cfg managed.Settings
	if settingsFile != "" {
		loaded, err := managed.LoadSettings(settingsFile)
		if err != nil {
			return nil, nil, err
		}
		cfg = *loaded
	}

	eng, err := engine.NewWazeroEngine(ctx, &engine.Config{Allocator: cfg.Allocator})
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	sys, err := managed.NewSystem(eng, cfg)
	if err != nil {
		eng.Close(ctx)
		return nil, nil, err
	}
	c, err := sys.CreateContext(ctx, "")
	if err != nil {
		sys.Close(ctx)
		return nil, nil, err
	}
	asm, err := c.LoadAssembly(ctx, imageFile)
	if err != nil {
		sys.Close(ctx)
		return nil, nil, fmt.Errorf("load %s: %w", imageFile, err)
	}
	return sys, asm, nil
}

func run(imageFile, settingsFile, invoke, argStr string, listOnly bool) error {
	ctx := context.Background()

	sys, asm, err := openSystem(ctx, imageFile, settingsFile)
	if err != nil {
		return err
	}
	defer sys.Close(ctx)

	classes, err := asm.Classes(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Image: %s\n", imageFile)
	fmt.Printf("Classes: %d\n", len(classes))

	if listOnly || invoke == "" {
		for _, class := range classes {
			printClass(class)
		}
		return nil
	}

	className, methodName, ok := strings.Cut(invoke, "::")
	if !ok {
		return fmt.Errorf("bad -invoke %q, want Namespace.Class::method", invoke)
	}
	var class *managed.Class
	for _, c := range classes {
		if c.FullName() == className {
			class = c
			break
		}
	}
	if class == nil {
		return fmt.Errorf("class %q not found", className)
	}
	method := class.FindMethod(methodName)
	if method == nil {
		return fmt.Errorf("method %q not found on %s", methodName, className)
	}

	args, err := parseArgs(argStr, method.ParamTypes())
	if err != nil {
		return err
	}

	var (
		result engine.Value
		exc    *managed.Exception
	)
	if method.Static() {
		result, exc, err = method.InvokeStatic(ctx, args...)
	} else {
		var obj *managed.Object
		obj, exc, err = class.CreateInstance(ctx, nil)
		if err == nil && exc == nil {
			result, exc, err = obj.Invoke(ctx, method, args...)
		}
	}
	if err != nil {
		return err
	}
	if exc != nil {
		fmt.Printf("Threw %s: %s\n%s\n", exc.FullClassName(), exc.Message, exc.StackTrace)
		return nil
	}
	fmt.Printf("Result: %v\n", result)
	return nil
}

func printClass(class *managed.Class) {
	flags := ""
	switch {
	case class.IsEnum():
		flags = " (enum)"
	case class.IsValueClass():
		flags = " (value)"
	case class.IsDelegate():
		flags = " (delegate)"
	}
	fmt.Printf("\n%s%s\n", class.FullName(), flags)
	for _, m := range class.Methods() {
		fmt.Printf("  %s\n", formatMethod(m))
	}
	for _, f := range class.Fields() {
		fmt.Printf("  %s: %s\n", f.Name(), f.Type().Name())
	}
	for _, p := range class.Properties() {
		access := ""
		if p.Getter() != nil {
			access += "get"
		}
		if p.Setter() != nil {
			if access != "" {
				access += "/"
			}
			access += "set"
		}
		fmt.Printf("  %s: %s { %s }\n", p.Name(), p.Type().Name(), access)
	}
}

func formatMethod(m *managed.Method) string {
	var params []string
	for _, p := range m.ParamTypes() {
		params = append(params, p.Name())
	}
	sig := m.Name() + "(" + strings.Join(params, ", ") + ")"
	if !m.ReturnType().IsVoid() {
		sig += " -> " + m.ReturnType().Name()
	}
	if m.Static() {
		sig = "static " + sig
	}
	return sig
}

func parseArgs(argStr string, types []*managed.Type) ([]engine.Value, error) {
	if argStr == "" {
		if len(types) != 0 {
			return nil, fmt.Errorf("method takes %d argument(s)", len(types))
		}
		return nil, nil
	}
	parts := strings.Split(argStr, ",")
	if len(parts) != len(types) {
		return nil, fmt.Errorf("got %d argument(s), method takes %d", len(parts), len(types))
	}
	args := make([]engine.Value, len(parts))
	for i, part := range parts {
		v, err := convertArg(strings.TrimSpace(part), types[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertArg(value string, t *managed.Type) (engine.Value, error) {
	switch {
	case t.IsString():
		return value, nil
	case t.IsBoolean():
		return value == "true" || value == "1", nil
	case t.IsInt32():
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case t.IsInt64():
		return strconv.ParseInt(value, 10, 64)
	case t.IsUInt32(), t.IsChar():
		v, err := strconv.ParseUint(value, 10, 32)
		return uint32(v), err
	case t.IsUInt64():
		return strconv.ParseUint(value, 10, 64)
	case t.IsFloat():
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case t.IsDouble():
		return strconv.ParseFloat(value, 64)
	default:
		return nil, fmt.Errorf("cannot build a %s from a string argument", t.Name())
	}
}
