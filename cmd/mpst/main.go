// Command mpst is the CLI surface of spec §6: project, parse, verify, and
// simulate subcommands over a JSON-encoded protocol module (the AST
// boundary's concrete wire format, ast.Module). Built on
// flag.NewFlagSet(flag.ContinueOnError) rather than a third-party CLI
// framework, since the CLI is one of the thinner layers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/config"
	"github.com/mpst-tools/dmst/project"
	"github.com/mpst-tools/dmst/registry"
	"github.com/mpst-tools/dmst/render"
	"github.com/mpst-tools/dmst/runtime"
	"github.com/mpst-tools/dmst/transport"
	"github.com/mpst-tools/dmst/verify"
)

// Exit codes (spec §6): 0 success, 1 verification failure, 2 parse
// error, 3 IO error.
const (
	exitOK           = 0
	exitVerifyFailed = 1
	exitParseError   = 2
	exitIOError      = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: mpst <project|parse|verify|simulate> [flags]")
		return exitIOError
	}
	log := logrus.New()
	log.Out = stderr

	switch args[0] {
	case "parse":
		return cmdParse(args[1:], stdin, stdout, stderr, log)
	case "verify":
		return cmdVerify(args[1:], stdin, stdout, stderr, log)
	case "project":
		return cmdProject(args[1:], stdin, stdout, stderr, log)
	case "simulate":
		return cmdSimulate(args[1:], stdin, stdout, stderr, log)
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", args[0])
		return exitIOError
	}
}

// sharedFlags are the input-selection flags common to every subcommand.
type sharedFlags struct {
	file     string
	stdin    bool
	protocol string
}

func bindShared(fs *flag.FlagSet, sf *sharedFlags) {
	fs.StringVar(&sf.file, "file", "", "path to a JSON protocol module")
	fs.BoolVar(&sf.stdin, "stdin", false, "read the JSON protocol module from stdin")
	fs.StringVar(&sf.protocol, "protocol", "", "name of the protocol to operate on (default: first declared)")
}

func loadModule(sf *sharedFlags, stdin io.Reader, args []string) (*ast.Module, error) {
	var data []byte
	var err error
	switch {
	case sf.stdin:
		data, err = io.ReadAll(stdin)
	case sf.file != "":
		data, err = os.ReadFile(sf.file)
	case len(args) > 0:
		data, err = os.ReadFile(args[0])
	default:
		return nil, fmt.Errorf("no input: pass --file, --stdin, or a positional path")
	}
	if err != nil {
		return nil, err
	}
	var mod ast.Module
	if jerr := json.Unmarshal(data, &mod); jerr != nil {
		return nil, fmt.Errorf("parse error: %w", jerr)
	}
	return &mod, nil
}

func selectProtocol(mod *ast.Module, name string) (*ast.Protocol, error) {
	if len(mod.Protocols) == 0 {
		return nil, fmt.Errorf("module declares no protocols")
	}
	if name == "" {
		return mod.Protocols[0], nil
	}
	for _, p := range mod.Protocols {
		if string(p.Name) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no protocol named %q", name)
}

// buildAll builds a CFG for every protocol in mod against a single
// registry and a single Builder, so that module-wide node ids stay
// unique across do/calls compositions (spec §4.1, §9 Design Notes).
func buildAll(mod *ast.Module) (*registry.Registry, map[ast.ProtocolName]*cfg.Graph, []cfg.Warning, error) {
	reg, err := registry.FromProtocols(mod.Protocols)
	if err != nil {
		return nil, nil, nil, err
	}
	builder := cfg.NewBuilder(reg)
	cfgs := make(map[ast.ProtocolName]*cfg.Graph, len(mod.Protocols))
	var warnings []cfg.Warning
	for _, p := range mod.Protocols {
		g, warns, err := builder.Build(p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("building %q: %w", p.Name, err)
		}
		cfgs[p.Name] = g
		warnings = append(warnings, warns...)
	}
	return reg, cfgs, warnings, nil
}

func printViolations(stderr io.Writer, d *verify.Diagnosis) {
	byKind := map[verify.Kind][]*verify.Violation{}
	var order []verify.Kind
	for _, v := range d.Violations {
		if _, seen := byKind[v.Kind]; !seen {
			order = append(order, v.Kind)
		}
		byKind[v.Kind] = append(byKind[v.Kind], v)
	}
	for _, kind := range order {
		fmt.Fprintf(stderr, "%s:\n", kind)
		for _, v := range byKind[kind] {
			fmt.Fprintf(stderr, "  line %d col %d: %s\n", v.Location.Line, v.Location.Col, v.Message)
		}
	}
}

func cmdParse(args []string, stdin io.Reader, stdout, stderr io.Writer, log *logrus.Logger) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	sf := &sharedFlags{}
	bindShared(fs, sf)
	if err := fs.Parse(args); err != nil {
		return exitIOError
	}
	mod, err := loadModule(sf, stdin, fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	fmt.Fprintf(stdout, "parsed %d protocol(s)\n", len(mod.Protocols))
	for _, p := range mod.Protocols {
		fmt.Fprintf(stdout, "  %s(%d roles)\n", p.Name, len(p.Roles))
	}
	return exitOK
}

func cmdVerify(args []string, stdin io.Reader, stdout, stderr io.Writer, log *logrus.Logger) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	sf := &sharedFlags{}
	bindShared(fs, sf)
	if err := fs.Parse(args); err != nil {
		return exitIOError
	}
	mod, err := loadModule(sf, stdin, fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	_, cfgs, warnings, err := buildAll(mod)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	for _, w := range warnings {
		log.WithField("line", w.Location.Line).Warn(w.Message)
	}
	proto, err := selectProtocol(mod, sf.protocol)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitIOError
	}
	d := verify.Verify(cfgs[proto.Name])
	if d.OK {
		fmt.Fprintln(stdout, "ok")
		return exitOK
	}
	printViolations(stderr, d)
	return exitVerifyFailed
}

func cmdProject(args []string, stdin io.Reader, stdout, stderr io.Writer, log *logrus.Logger) int {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	sf := &sharedFlags{}
	bindShared(fs, sf)
	role := fs.String("role", "", "project only this role (default: every formal role)")
	format := fs.String("format", "text", "output format: text|json|both")
	outputDir := fs.String("output-dir", "", "write one file per role here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitIOError
	}
	mod, err := loadModule(sf, stdin, fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	reg, cfgs, _, err := buildAll(mod)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	proto, err := selectProtocol(mod, sf.protocol)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitIOError
	}
	g := cfgs[proto.Name]
	d := verify.Verify(g)
	if !verify.PassesP0(g) {
		printViolations(stderr, d)
		return exitVerifyFailed
	}

	proj := project.New(reg)
	var results cfsm.Registry
	if *role != "" {
		c, err := proj.Project(g, ast.RoleName(*role))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitVerifyFailed
		}
		results = cfsm.Registry{ast.RoleName(*role): c}
	} else {
		results, err = proj.ProjectAll(g)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitVerifyFailed
		}
	}

	if !d.OK {
		printViolations(stderr, d)
	}
	return emitProjections(results, *format, *outputDir, stdout, stderr)
}

func emitProjections(results cfsm.Registry, format, outputDir string, stdout, stderr io.Writer) int {
	for role, c := range results {
		text := render.Local(c)
		var jsonOut []byte
		if format == "json" || format == "both" {
			payload := struct {
				Role     ast.RoleName     `json:"role"`
				Protocol ast.ProtocolName `json:"protocol"`
				Local    string           `json:"local"`
			}{Role: role, Protocol: c.ProtocolName, Local: text}
			var err error
			jsonOut, err = json.MarshalIndent(payload, "", "  ")
			if err != nil {
				fmt.Fprintln(stderr, err)
				return exitIOError
			}
		}

		if outputDir != "" {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				fmt.Fprintln(stderr, err)
				return exitIOError
			}
			if format == "text" || format == "both" {
				if err := os.WriteFile(filepath.Join(outputDir, string(role)+".txt"), []byte(text), 0o644); err != nil {
					fmt.Fprintln(stderr, err)
					return exitIOError
				}
			}
			if format == "json" || format == "both" {
				if err := os.WriteFile(filepath.Join(outputDir, string(role)+".json"), jsonOut, 0o644); err != nil {
					fmt.Fprintln(stderr, err)
					return exitIOError
				}
			}
			continue
		}

		if format == "text" || format == "both" {
			fmt.Fprint(stdout, text)
		}
		if format == "json" || format == "both" {
			fmt.Fprintln(stdout, string(jsonOut))
		}
	}
	return exitOK
}

func cmdSimulate(args []string, stdin io.Reader, stdout, stderr io.Writer, log *logrus.Logger) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	sf := &sharedFlags{}
	bindShared(fs, sf)
	maxSteps := fs.Int("max-steps", 10000, "maximum steps per simulator before max-steps-exceeded")
	scheduling := fs.String("scheduling", "round-robin", "round-robin|random|fair")
	if err := fs.Parse(args); err != nil {
		return exitIOError
	}
	mod, err := loadModule(sf, stdin, fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	reg, cfgs, _, err := buildAll(mod)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitParseError
	}
	proto, err := selectProtocol(mod, sf.protocol)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitIOError
	}
	g := cfgs[proto.Name]
	if !verify.PassesP0(g) {
		printViolations(stderr, verify.Verify(g))
		return exitVerifyFailed
	}

	proj := project.New(reg)
	cfsms, err := proj.ProjectAll(g)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitVerifyFailed
	}

	rtCfg, err := config.New(config.WithMaxSteps(*maxSteps), config.WithRoleScheduling(config.RoleScheduling(*scheduling)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitIOError
	}

	tr := transport.New(transport.NoDelay{}, false)
	resolver := runtime.NewSubprotocolResolver(reg, cfgs)
	runID := uuid.NewString()
	sims := make(map[ast.RoleName]*runtime.CFSMSimulator, len(cfsms))
	for role, c := range cfsms {
		sims[role] = runtime.NewCFSMSimulator(runID, c, resolver, tr, rtCfg)
	}

	coordinator := runtime.NewDistributedSimulator(sims, rtCfg.RoleScheduling)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result := coordinator.Run(ctx)

	fmt.Fprintf(stdout, "steps=%d success=%t\n", result.GlobalSteps, result.Success)
	if !result.Success {
		fmt.Fprintln(stderr, result.Err)
		return exitVerifyFailed
	}
	return exitOK
}
