package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunsuke-abe/govm/pkg/runtime"
	"github.com/shunsuke-abe/govm/pkg/trace"
)

const version = "0.1.0"

var (
	classpathFlag string
	traceFlag     bool
	versionFlag   bool
	d32Flag       bool
	d64Flag       bool
)

var rootCmd = &cobra.Command{
	Use:                   "govm [flags] <main-class> [args...]",
	Short:                 "A bytecode interpreter for a managed Java-class-file runtime",
	DisableFlagsInUseLine: true,
	SilenceUsage:          true,
	SilenceErrors:         true,
	Args:                  cobra.ArbitraryArgs,
	RunE:                  runMain,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&classpathFlag, "cp", "", "class search path (alias: -classpath)")
	flags.StringVar(&classpathFlag, "classpath", "", "class search path")
	flags.BoolVar(&traceFlag, "d", false, "trace bytecode execution to stderr (alias: -t)")
	flags.BoolVar(&traceFlag, "t", false, "trace bytecode execution to stderr")
	flags.BoolVar(&versionFlag, "version", false, "print version information; exits if no main class is given (alias: -showversion)")
	flags.BoolVar(&versionFlag, "showversion", false, "same as -version")
	flags.BoolVar(&d32Flag, "d32", false, "run in a 32-bit environment (unsupported)")
	flags.BoolVar(&d64Flag, "d64", false, "run in a 64-bit environment (no-op: govm is always 64-bit)")
}

// runMain is the body of the single root command: govm has no
// subcommands, matching `java` itself rather than the rest of the pack's
// multi-subcommand CLIs (jdiag, pedumper) — the positional arguments are
// the main class and the arguments passed through to its main(String[]).
func runMain(cmd *cobra.Command, args []string) error {
	if d32Flag {
		return fmt.Errorf("govm: -d32 is not supported (govm has no 32-bit heap representation)")
	}

	if versionFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "govm version %s\n", version)
	}

	if len(args) == 0 {
		if versionFlag {
			return nil
		}
		return cmd.Help()
	}

	mainClass := args[0]
	programArgs := args[1:]

	cfg := runtime.Config{
		ClasspathSpec: resolveClasspath(classpathFlag),
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}
	if traceFlag {
		cfg.Trace = trace.New(os.Stderr, trace.LevelDebug)
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("govm: %w", err)
	}

	if err := rt.Run(mainClass, programArgs); err != nil {
		return err
	}
	return nil
}

// resolveClasspath falls back to the GOVM_CLASSPATH environment variable
// when -cp/-classpath is absent, the analogue of a JDK's CLASSPATH
// fallback.
func resolveClasspath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GOVM_CLASSPATH"); env != "" {
		return env
	}
	return "."
}
