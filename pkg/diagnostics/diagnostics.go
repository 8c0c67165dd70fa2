package diagnostics

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ----------------------------------------------------------------------------
// General information

// This package is the single reporting channel of the compiler.
//
// Every pass (lexer, parser, resolver, type checker, generator) funnels its
// messages through a shared 'Sink' so that rendering, counting and verbosity
// are handled in one place. Messages come in three kinds: info and warning are
// advisory, only error messages terminate the compilation. A message can carry
// a source span; when it does the printer shows the offending source line with
// the span underlined.

type Kind string // Enum to manage the different kind of diagnostic message

const (
	Info    Kind = "INFO"
	Warning Kind = "WARNING"
	Error   Kind = "ERROR"
)

// A half-open span into the source text, with the precomputed line and column
// of its first byte (both 1-based). The zero value means "no location".
type Span struct {
	Offset, Length int
	Line, Column   int
}

// Reports whether the span points at an actual piece of source.
func (s Span) Known() bool { return s.Length > 0 }

var (
	infoTag    = color.New(color.Bold, color.FgBlue)
	warningTag = color.New(color.Bold, color.FgYellow)
	errorTag   = color.New(color.Bold, color.FgRed)
	underline  = color.New(color.Bold, color.FgRed)
)

// ----------------------------------------------------------------------------
// Sink

// Collects and renders the diagnostics of one compilation unit.
//
// The Sink owns the source text and its path so that located messages can be
// rendered with their offending line. It also keeps the running count of
// error messages, exposed through Errors().
type Sink struct {
	Source string         // The full source text, used to render offending lines
	Path   string         // The path the source was read from, shown in locations
	Out    io.Writer      // Where warnings and errors are rendered (usually stderr)
	Logger *logrus.Logger // Receives info messages, gated by the configured level

	errors int // Running count of Error-kind messages
}

// Returns the number of error diagnostics reported so far.
func (s *Sink) Errors() int { return s.errors }

// Reports a message without a source location.
func (s *Sink) Report(kind Kind, format string, args ...any) {
	s.ReportAt(kind, Span{}, format, args...)
}

// Reports a message, optionally anchored to a source span.
//
// Info messages go to the logger only. Warnings and errors are rendered to
// 'Out' with a colored tag header, the formatted cause and, when the span is
// known, the source line with the span underlined by carets.
func (s *Sink) ReportAt(kind Kind, span Span, format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	if kind == Error {
		s.errors++
	}
	if kind == Info {
		if s.Logger != nil {
			s.Logger.Info(message)
		}
		return
	}
	if s.Out == nil {
		return
	}

	tag := warningTag
	if kind == Error {
		tag = errorTag
	}

	fmt.Fprintf(s.Out, "---%s---\n", tag.Sprint(string(kind)))
	fmt.Fprintf(s.Out, "Cause: %s\n", message)

	if span.Known() {
		fmt.Fprintf(s.Out, "Location: %s:%d:%d\n\n", s.Path, span.Line, span.Column)
		s.renderSpan(span)
	}

	fmt.Fprintln(s.Out)
}

// Renders the source line the span starts on, highlighting the spanned bytes
// and underlining them with a row of carets.
func (s *Sink) renderSpan(span Span) {
	start := span.Offset - (span.Column - 1)
	if start < 0 || start > len(s.Source) {
		return
	}

	end := strings.IndexByte(s.Source[start:], '\n')
	if end == -1 {
		end = len(s.Source) - start
	}
	line := s.Source[start : start+end]

	for i, ch := range []byte(line) {
		offset := start + i
		if offset >= span.Offset && offset < span.Offset+span.Length {
			fmt.Fprint(s.Out, underline.Sprint(string(ch)))
		} else {
			fmt.Fprint(s.Out, string(ch))
		}
	}
	fmt.Fprintln(s.Out)

	fmt.Fprint(s.Out, strings.Repeat(" ", span.Column-1))
	carets := span.Length
	if carets > len(line)-(span.Column-1) && len(line) >= span.Column-1 {
		carets = len(line) - (span.Column - 1)
	}
	if carets < 1 {
		carets = 1
	}
	fmt.Fprintln(s.Out, underline.Sprint(strings.Repeat("^", carets)))
}
