package compiler

import (
	"io"

	"github.com/sirupsen/logrus"

	"its-hmny.dev/seronc/pkg/diagnostics"
	"its-hmny.dev/seronc/pkg/seron"
	"its-hmny.dev/seronc/pkg/x86"
)

// ----------------------------------------------------------------------------
// Compiler pipeline

// This package strings the passes of the compiler together: lexing, parsing,
// lowering, scope resolution, type checking and code generation. It consumes
// a source string plus a configuration record and produces either the NASM
// text of the program or an error, after having reported the human-readable
// diagnostics through the configured sink. Reading files, writing artifacts
// and driving the external assembler and linker is the driver's business, not
// ours.

// Global-for-compilation configuration of one Compile run.
type Config struct {
	Path string // The path the source came from, shown in diagnostics

	DumpTokens  bool // Dump the token stream to Stderr before parsing
	DumpAst     bool // Dump the parsed AST to Stderr
	DumpSymbols bool // Dump the resolved scope table to Stderr
	Asmdoc      bool // Annotate the emitted assembly with origin comments

	Logger *logrus.Logger // Receives info-level pass progress
	Stderr io.Writer      // Receives diagnostics and debug dumps
}

// Runs the full pipeline over the given source text. On success the returned
// slice holds the complete NASM program ('.data' plus '.text'); on failure
// the diagnostics have already been rendered and the error summarizes the
// failing pass.
func Compile(src string, cfg Config) ([]byte, error) {
	sink := &diagnostics.Sink{Source: src, Path: cfg.Path, Out: cfg.Stderr, Logger: cfg.Logger}

	if cfg.DumpTokens {
		tokens, err := seron.Tokenize(src)
		if err != nil {
			sink.Report(diagnostics.Error, "%s", err)
			return nil, err
		}
		seron.FprintTokens(cfg.Stderr, tokens)
	}

	sink.Report(diagnostics.Info, "parsing %s", cfg.Path)
	root, err := seron.Parse(src, sink)
	if err != nil {
		return nil, err
	}

	if cfg.DumpAst {
		seron.Fprint(cfg.Stderr, root, 2)
	}

	sink.Report(diagnostics.Info, "lowering surface constructs")
	seron.Lower(root)

	sink.Report(diagnostics.Info, "resolving scopes and frame layout")
	table, err := seron.Resolve(root, sink)
	if err != nil {
		return nil, err
	}

	if cfg.DumpSymbols {
		table.Fprint(cfg.Stderr)
	}

	sink.Report(diagnostics.Info, "type checking")
	if err := seron.Check(root, sink); err != nil {
		return nil, err
	}

	sink.Report(diagnostics.Info, "generating x86-64 assembly")
	codegen := x86.NewCodeGenerator(x86.Options{Annotate: cfg.Asmdoc})

	out, err := codegen.Generate(root)
	if err != nil {
		sink.Report(diagnostics.Error, "%s", err)
		return nil, err
	}

	return out, nil
}
