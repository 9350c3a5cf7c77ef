package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"compile", "-no-sched", "testdata/shared.gass"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "", stdErr)
	require.Equal(t, `func k
entry:
	B------:R-:W0:S02  LDS R2, [R0]
	B------:R-:W1:S02  LDS R3, [R1]
	B01----:R-:W-:S06  FADD R4, R2, R3
	B------:R-:W-:S02  STG [R6], R4
	B------:R-:W-:S02  EXIT
`, stdOut)
}

func TestCompile_scheduled(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"compile", "testdata/loop.gass"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "func sum\n")
	require.Contains(t, stdOut, "loop: ; succs: loop exit\n")
	require.Contains(t, stdOut, "@P0 BRA loop\nexit:")
}

func TestVersion(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"version"})
	require.Equal(t, 0, exitCode)
	require.NotEqual(t, "\n", stdOut)
}

func TestHelp(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdErr, "gassc CLI\n\nUsage:")
}

func TestErrors(t *testing.T) {
	notGassPath := filepath.Join(t.TempDir(), "bears.gass")
	require.NoError(t, os.WriteFile(notGassPath, []byte("entry:\n\tPOOH R0\n"), 0o644))

	tests := []struct {
		message string
		args    []string
	}{
		{
			message: "invalid command",
			args:    []string{"run"},
		},
		{
			message: "missing path to gass file",
			args:    []string{"compile"},
		},
		{
			message: "error reading gass file",
			args:    []string{"compile", "non-existent.gass"},
		},
		{
			message: "error parsing gass file",
			args:    []string{"compile", notGassPath},
		},
		{
			message: "error compiling gass file: compile k: barrier capacity 1 out of range",
			args:    []string{"compile", "-capacity", "1", "testdata/shared.gass"},
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.message, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, tt.args)

			require.Equal(t, 1, exitCode)
			require.Equal(t, "", stdOut)
			require.Contains(t, stdErr, tt.message)
		})
	}
}

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = append([]string{"gassc"}, args...)

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		doMain(stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
