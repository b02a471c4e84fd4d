package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// MatrixAdmin is the matrix surface used by the CLI.
type MatrixAdmin interface {
	Export() rbac.Snapshot
	Import(ctx context.Context, actor rbac.Actor, snap rbac.Snapshot) error
}

// MatrixCLI exports and imports the role-permission matrix.
type MatrixCLI struct {
	matrix MatrixAdmin
}

// NewMatrixCLI constructs the matrix helper.
func NewMatrixCLI(matrix MatrixAdmin) *MatrixCLI {
	return &MatrixCLI{matrix: matrix}
}

// MatrixOptions defines the flags shared by matrix commands. Path "-" or ""
// means stdin for import and stdout for export.
type MatrixOptions struct {
	Path   string
	Actor  string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (o *MatrixOptions) defaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if strings.TrimSpace(o.Actor) == "" {
		o.Actor = "cli"
	}
}

// Run dispatches `matrix export [file]` and `matrix import <file>`.
func (c *MatrixCLI) Run(ctx context.Context, args []string, opts MatrixOptions) int {
	opts.defaults()
	flags := pflag.NewFlagSet("matrix", pflag.ContinueOnError)
	flags.SetOutput(opts.Stderr)
	flags.StringVar(&opts.Actor, "actor", opts.Actor, "actor id recorded in the audit log")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := flags.Args()
	if len(rest) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "usage: odyssey matrix export [file] | import <file> [--actor id]")
		return 2
	}
	switch rest[0] {
	case "export":
		if len(rest) > 1 {
			opts.Path = rest[1]
		}
		return c.ExportCommand(opts)
	case "import":
		if len(rest) < 2 {
			_, _ = fmt.Fprintln(opts.Stderr, "matrix import: file argument is required")
			return 2
		}
		opts.Path = rest[1]
		return c.ImportCommand(ctx, opts)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "matrix: unknown command %q\n", rest[0])
		return 2
	}
}

// ExportCommand writes the current matrix snapshot as JSON.
func (c *MatrixCLI) ExportCommand(opts MatrixOptions) int {
	opts.defaults()
	body, err := json.MarshalIndent(c.matrix.Export(), "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "matrix export: encode: %v\n", err)
		return 1
	}
	body = append(body, '\n')
	if opts.Path == "" || opts.Path == "-" {
		if _, err := opts.Stdout.Write(body); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "matrix export: %v\n", err)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(opts.Path, body, 0o600); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "matrix export: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "matrix exported to %s\n", opts.Path)
	return 0
}

// ImportCommand replaces the matrix with the snapshot read from Path.
// Nothing changes when any row is invalid.
func (c *MatrixCLI) ImportCommand(ctx context.Context, opts MatrixOptions) int {
	opts.defaults()
	var in io.Reader = opts.Stdin
	if opts.Path != "" && opts.Path != "-" {
		f, err := os.Open(opts.Path)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "matrix import: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	var snap rbac.Snapshot
	if err := dec.Decode(&snap); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "matrix import: decode: %v\n", err)
		return 1
	}
	if err := c.matrix.Import(ctx, rbac.SystemActor(opts.Actor), snap); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "matrix import: %v\n", err)
		if errors.Is(err, shared.ErrValidation) {
			return 10
		}
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "matrix imported: %d roles\n", len(snap.Roles))
	return 0
}
