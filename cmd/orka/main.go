// Command orka is the CLI entry point for the ORKA assistant-session
// orchestrator: it starts the control surface and hook receiver, or runs a
// one-shot environment check before either is asked to.
package main

import (
	"os"

	"github.com/orka-sh/orka-core/cmd/orka/commands"
	"github.com/orka-sh/orka-core/internal/orkaerr"
)

func main() {
	if err := commands.Execute(); err != nil {
		if orkaerr.Is(err, orkaerr.KindFatalStartup) || orkaerr.Is(err, orkaerr.KindPrecondition) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
