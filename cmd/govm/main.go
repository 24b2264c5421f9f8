// Command govm runs a compiled Java class file: parse its class file,
// resolve its dependencies through the method area, and interpret
// main(String[]) on the managed heap (spec.md section 9's entry point).
package main

import (
	"fmt"
	"os"
)

func main() {
	normalizeJavaStyleFlags(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "govm: %v\n", err)
		os.Exit(1)
	}
}

// normalizeJavaStyleFlags rewrites os.Args in place so single-dash,
// multi-letter flags in the `java`-style CLI surface spec.md section 3
// describes (-cp, -d32, -help, -?, ...) parse as cobra/pflag expects
// (double-dash long flags); pflag's shorthand mechanism only accepts a
// single rune, so "-cp" and "-classpath" would otherwise be read as a
// run of single-letter shorthand flags. -help and -? have no backing
// flag (cobra's built-in --help covers both) so they're mapped directly.
func normalizeJavaStyleFlags(args []string) {
	for i, a := range args {
		switch a {
		case "-help", "-?":
			args[i] = "--help"
		case "-cp", "-classpath", "-d", "-t", "-version", "-showversion", "-d32", "-d64":
			args[i] = "-" + a
		}
	}
}
