// Package launcher resolves an application name to a local launch and starts
// it. Names found in the alias table use their registered descriptor; every
// other name is launched through a per-platform fallback template.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
)

// NamePlaceholder is replaced by the application name in fallback templates.
const NamePlaceholder = "{name}"

// Descriptor is an executable plus its arguments.
type Descriptor struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

func (d Descriptor) String() string {
	if len(d.Args) == 0 {
		return d.Command
	}
	return d.Command + " " + strings.Join(d.Args, " ")
}

// Table maps lower-cased application names to launch descriptors.
type Table map[string]Descriptor

// DefaultFallback returns the launch template for goos.
func DefaultFallback(goos string) string {
	switch goos {
	case "darwin":
		return "open -a " + NamePlaceholder
	case "windows":
		return "cmd /c start " + NamePlaceholder
	default:
		return "xdg-open " + NamePlaceholder
	}
}

// DefaultTable returns the built-in aliases for goos.
func DefaultTable(goos string) Table {
	if goos != "windows" {
		return Table{}
	}
	appsFolder := func(id string) Descriptor {
		return Descriptor{Command: "explorer.exe", Args: []string{`shell:appsFolder\` + id}}
	}
	return Table{
		"whatsapp":   appsFolder("5319275A.WhatsAppDesktop_cv1g1gvanyjgm!App"),
		"camera":     appsFolder("Microsoft.WindowsCamera_8wekyb3d8bbwe!App"),
		"photos":     appsFolder("Microsoft.Windows.Photos_8wekyb3d8bbwe!App"),
		"calculator": appsFolder("Microsoft.WindowsCalculator_8wekyb3d8bbwe!App"),
		"settings":   {Command: "explorer.exe", Args: []string{"ms-settings:"}},
	}
}

// Options configures a Resolver.
type Options struct {
	// Fallback is a whitespace separated template; every {name} is replaced
	// with the application name. Empty selects DefaultFallback(runtime.GOOS).
	Fallback string
	// Aliases is the initial alias table. Nil selects DefaultTable(runtime.GOOS).
	Aliases Table
	Runner  Runner
	Logger  *slog.Logger
}

// Resolver maps application names to launches.
type Resolver struct {
	fallback []string
	aliases  atomic.Pointer[Table]
	runner   Runner
	logger   *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner(opts.Logger)
	}
	if strings.TrimSpace(opts.Fallback) == "" {
		opts.Fallback = DefaultFallback(runtime.GOOS)
	}
	if opts.Aliases == nil {
		opts.Aliases = DefaultTable(runtime.GOOS)
	}

	r := &Resolver{
		fallback: strings.Fields(opts.Fallback),
		runner:   opts.Runner,
		logger:   opts.Logger,
	}
	r.SetAliases(opts.Aliases)
	return r
}

// SetAliases replaces the alias table. Keys are normalized to lower case.
func (r *Resolver) SetAliases(t Table) {
	normalized := make(Table, len(t))
	for name, d := range t {
		normalized[normalizeName(name)] = d
	}
	r.aliases.Store(&normalized)
}

// Aliases returns a copy of the current alias table.
func (r *Resolver) Aliases() Table {
	current := *r.aliases.Load()
	out := make(Table, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}

// Descriptor returns the launch descriptor name resolves to.
func (r *Resolver) Descriptor(name string) (Descriptor, bool) {
	name = normalizeName(name)
	if name == "" {
		return Descriptor{}, false
	}
	if d, ok := (*r.aliases.Load())[name]; ok {
		return d, true
	}

	args := make([]string, 0, len(r.fallback)-1)
	for _, part := range r.fallback[1:] {
		args = append(args, strings.ReplaceAll(part, NamePlaceholder, name))
	}
	return Descriptor{
		Command: strings.ReplaceAll(r.fallback[0], NamePlaceholder, name),
		Args:    args,
	}, true
}

// Resolve starts the application and returns a user-facing sentence. It
// never returns an error; launch failures are reported in the sentence.
func (r *Resolver) Resolve(ctx context.Context, name string) string {
	name = normalizeName(name)
	if name == "" {
		return "Sorry, I couldn't open that. Error: empty application name"
	}

	d, _ := r.Descriptor(name)
	if err := r.runner.Start(ctx, d); err != nil {
		r.logger.Warn("Failed to launch application", "name", name, "command", d.String(), "error", err)
		return fmt.Sprintf("Sorry, I couldn't open %s. Error: %v", name, err)
	}

	r.logger.Info("Launched application", "name", name, "command", d.Command)
	return fmt.Sprintf("Opening %s.", name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
