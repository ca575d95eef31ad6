package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/orka-sh/orka-core/internal/config"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/tmux"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the host is ready to run orka",
	Long: `doctor verifies the preconditions orka needs before it will start a
session: a reachable multiplexer binary and writable per-user directories
(spec §6 exit code 2, "precondition not met").`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	rt, err := config.Load("")
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindFatalStartup, "failed to load configuration", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return orkaerr.Wrap(orkaerr.KindFatalStartup, "failed to create per-user directories", err)
	}
	fmt.Printf("config dir:  %s\n", paths.Config)
	fmt.Printf("agents dir:  %s\n", paths.AgentsHome)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := verifyMultiplexer(ctx, rt.MultiplexerBinary); err != nil {
		fmt.Printf("multiplexer: %s — NOT AVAILABLE (%v)\n", rt.MultiplexerBinary, err)
		return err
	}
	fmt.Printf("multiplexer: %s — ok\n", rt.MultiplexerBinary)

	fmt.Println("orka is ready")
	return nil
}

// verifyMultiplexer is the shared startup precondition check (spec §6 exit
// code 2): both `doctor` and `serve` refuse to proceed without a reachable
// multiplexer binary.
func verifyMultiplexer(ctx context.Context, binary string) error {
	mux := tmux.New(binary)
	if err := mux.CheckAvailable(ctx); err != nil {
		return orkaerr.FatalStartup(fmt.Sprintf("multiplexer binary %q not available", binary), err)
	}
	return nil
}
