package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orka-sh/orka-core/internal/config"
	"github.com/orka-sh/orka-core/internal/decision"
	"github.com/orka-sh/orka-core/internal/hook"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/registry"
	"github.com/orka-sh/orka-core/internal/server"
	"github.com/orka-sh/orka-core/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	serveControlPort int
	serveHookPort    int
	serveDir         string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orka control surface and hook receiver",
	Long: `serve starts two HTTP listeners: the control surface (projects,
sessions, forks, permissions, and the SSE/WebSocket event streams) and the
hook receiver (the endpoint the assistant CLI's lifecycle hooks post to).`,
	RunE: runServe,
}

func init() {
	defaults := config.DefaultRuntimeConfig()
	serveCmd.Flags().IntVar(&serveControlPort, "control-port", defaults.ControlPort, "Control surface port")
	serveCmd.Flags().IntVar(&serveHookPort, "hook-port", defaults.HookPort, "Hook receiver port")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Project directory for layered configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindFatalStartup, "failed to resolve working directory", err)
	}

	logging.Info().Str("version", Version).Msg("starting orka")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return orkaerr.Wrap(orkaerr.KindFatalStartup, "failed to create per-user directories", err)
	}

	rt, err := config.Load(workDir)
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindFatalStartup, "failed to load configuration", err)
	}
	if cmd.Flags().Changed("control-port") {
		rt.ControlPort = serveControlPort
	}
	if cmd.Flags().Changed("hook-port") {
		rt.HookPort = serveHookPort
	}

	doctorCtx, doctorCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = verifyMultiplexer(doctorCtx, rt.MultiplexerBinary)
	doctorCancel()
	if err != nil {
		return err
	}

	decider, err := decision.New(rt.DecisionModel, rt.DecisionTimeout)
	if err != nil {
		logging.Warn().Err(err).Msg("LLM fallback decision maker disabled")
		decider = nil
	}

	reg := registry.New(paths, rt, decider, supervisor.LogNotifier{})

	hookReceiver := hook.New(hook.DefaultConfig(rt.HookPort), reg, reg)
	controlSrv := server.New(server.Config{
		Port:         rt.ControlPort,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, reg)

	go func() {
		logging.Info().Int("port", rt.HookPort).Msg("hook receiver listening")
		if err := hookReceiver.Start(); err != nil {
			logging.Fatal().Err(err).Msg("hook receiver error")
		}
	}()

	go func() {
		logging.Info().Int("port", rt.ControlPort).
			Str("url", fmt.Sprintf("http://127.0.0.1:%d", rt.ControlPort)).
			Msg("control surface listening")
		if err := controlSrv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("control surface error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down orka")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := controlSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("control surface shutdown error")
	}
	if err := hookReceiver.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("hook receiver shutdown error")
	}

	logging.Info().Msg("orka stopped")
	return nil
}
