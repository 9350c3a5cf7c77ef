package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/backend"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "compile":
		doCompile(flag.Args()[1:], stdOut, stdErr, exit)
	case "version":
		fmt.Fprintln(stdOut, version())
		exit(0)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func doCompile(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var capacity int
	flags.IntVar(&capacity, "capacity", ir.BarrierCount, "number of dependency barriers a region may use, between 2 and 6")

	var noSched bool
	flags.BoolVar(&noSched, "no-sched", false, "keep the input instruction order")

	var trace string
	flags.StringVar(&trace, "trace", "",
		"A comma-separated list of trace topics to log to stderr. Supported values: barrier,sched,sched_pick,stall,dump_<pass>")

	_ = flags.Parse(args)

	if help {
		printCompileUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to gass file")
		printCompileUsage(stdErr, flags)
		exit(1)
	}

	src, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading gass file: %v\n", err)
		exit(1)
	}

	f, err := ir.Parse(string(src))
	if err != nil {
		fmt.Fprintf(stdErr, "error parsing gass file: %v\n", err)
		exit(1)
	}

	ctx := context.Background()
	if trace != "" {
		l := tlog.New(tlog.NewConsoleWriter(stdErr, tlog.LstdFlags))
		l.SetVerbosity(trace)
		tr := l.Start("gassc")
		defer tr.Finish()
		ctx = tlog.ContextWithSpan(ctx, tr)
	}

	cfg := backend.NewConfig().
		WithBarrierCapacity(capacity).
		WithScheduling(!noSched)
	if err = backend.NewCompiler(cfg).Compile(ctx, f); err != nil {
		fmt.Fprintf(stdErr, "error compiling gass file: %v\n", err)
		exit(1)
	}

	fmt.Fprint(stdOut, f.Format())
	exit(0)
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "gassc CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  gassc <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  compile\tSchedules a GASS function and sets its control words")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of gassc CLI")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "gassc CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  gassc compile <options> <path to gass file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
