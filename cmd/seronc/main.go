package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/teris-io/cli"

	"its-hmny.dev/seronc/pkg/compiler"
	"its-hmny.dev/seronc/pkg/diagnostics"
)

var Description = strings.ReplaceAll(`
The seron compiler translates a single source file written in the seron
language into x86-64 assembly (NASM syntax) and drives the external assembler
and linker to produce an ELF object and an executable.
`, "\n", " ")

var Seronc = cli.New(Description).
	WithArg(cli.NewArg("source", "The source (.sn) file to be compiled").WithType(cli.TypeString)).
	WithOption(cli.NewOption("assembly", "Stop after code generation, emit the .s file only").
		WithChar('S').WithType(cli.TypeBool)).
	WithOption(cli.NewOption("object", "Stop after assembling, emit the .o file only").
		WithChar('c').WithType(cli.TypeBool)).
	WithOption(cli.NewOption("verbose", "Show info messages").
		WithChar('v').WithType(cli.TypeBool)).
	WithOption(cli.NewOption("dump-tokens", "Dump the token stream to stderr").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("dump-ast", "Dump the parsed AST to stderr").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("dump-symboltable", "Dump the resolved scopes to stderr").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("asmdoc", "Annotate the emitted assembly with origin comments").WithType(cli.TypeBool)).
	WithAction(Handler)

// Swappable seams so the handler is testable without touching the real disk
// or spawning real subprocesses.
var (
	fs     = afero.NewOsFs()
	stderr = io.Writer(os.Stderr)
	runCmd = func(name string, args ...string) error {
		cmd := exec.Command(name, args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		return cmd.Run()
	}
)

// The artifact paths derived from the source path: 'main.sn' compiles through
// 'main.s' and 'main.o' into 'main'.
type filenames struct {
	source, assembly, object, binary string
}

func deriveFilenames(source string) (filenames, error) {
	ext := filepath.Ext(source)
	if ext != ".sn" && ext != ".srn" {
		return filenames{}, fmt.Errorf("file extension must be `.sn` or `.srn`, got `%s`", source)
	}

	stripped := strings.TrimSuffix(source, ext)
	return filenames{
		source:   source,
		assembly: stripped + ".s",
		object:   stripped + ".o",
		binary:   stripped,
	}, nil
}

func Handler(args []string, options map[string]string) int {
	sink := &diagnostics.Sink{Out: stderr}

	if len(args) < 1 {
		sink.Report(diagnostics.Error, "No input file provided, use --help")
		return 1
	}

	names, err := deriveFilenames(args[0])
	if err != nil {
		sink.Report(diagnostics.Error, "%s", err)
		return 1
	}

	source, err := afero.ReadFile(fs, names.source)
	if err != nil {
		sink.Report(diagnostics.Error, "Source file `%s` does not exist", names.source)
		return 1
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(logrus.WarnLevel)
	if _, enabled := options["verbose"]; enabled {
		logger.SetLevel(logrus.InfoLevel)
	}

	_, dumpTokens := options["dump-tokens"]
	_, dumpAst := options["dump-ast"]
	_, dumpSymbols := options["dump-symboltable"]
	_, asmdoc := options["asmdoc"]

	assembly, err := compiler.Compile(string(source), compiler.Config{
		Path:        names.source,
		DumpTokens:  dumpTokens,
		DumpAst:     dumpAst,
		DumpSymbols: dumpSymbols,
		Asmdoc:      asmdoc,
		Logger:      logger,
		Stderr:      stderr,
	})
	if err != nil {
		return 1
	}

	// the assembly only ever reaches the disk complete: the generator either
	// returns the whole program or nothing
	if err := afero.WriteFile(fs, names.assembly, assembly, 0644); err != nil {
		sink.Report(diagnostics.Error, "Failed to write output file `%s`", names.assembly)
		return 1
	}

	if _, assemblyOnly := options["assembly"]; assemblyOnly {
		return 0
	}

	logger.Infof("assembling %s", names.object)
	if err := runCmd("nasm", names.assembly, "-felf64", "-o", names.object, "-gdwarf"); err != nil {
		sink.Report(diagnostics.Error, "Failed to assemble via `nasm` (is nasm installed?)")
		return 1
	}

	if _, objectOnly := options["object"]; objectOnly {
		return 0
	}

	logger.Infof("linking %s", names.binary)
	if err := runCmd("cc", "-no-pie", names.object, "-o", names.binary); err != nil {
		sink.Report(diagnostics.Error, "Failed to link via `cc`")
		return 1
	}

	return 0
}

func main() { os.Exit(Seronc.Run(os.Args, os.Stdout)) }
