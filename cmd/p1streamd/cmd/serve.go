package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/p1stream/p1stream-go/internal/audiomixer"
	"github.com/p1stream/p1stream-go/internal/automation"
	"github.com/p1stream/p1stream-go/internal/codec"
	"github.com/p1stream/p1stream-go/internal/config"
	"github.com/p1stream/p1stream-go/internal/logger"
	"github.com/p1stream/p1stream-go/internal/notifybus"
	"github.com/p1stream/p1stream-go/internal/pipelinectx"
	"github.com/p1stream/p1stream-go/internal/rtmp/client"
	"github.com/p1stream/p1stream-go/internal/rtmp/relay"
	"github.com/p1stream/p1stream-go/internal/timebase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	runID := uuid.NewString()
	log := logger.Logger().With("component", "p1streamd", "run_id", runID)

	reader, err := config.NewReader(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	watchCtx, stopWatch := context.WithCancel(cmd.Context())
	defer stopWatch()
	if err := reader.Watch(watchCtx); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	destinations := reader.Strings("relay.destinations")
	clientFactory := func(url string) (relay.RTMPClient, error) { return client.New(url) }
	dm, err := relay.NewDestinationManager(destinations, log, clientFactory)
	if err != nil {
		return fmt.Errorf("build relay destinations: %w", err)
	}

	bus := notifybus.New(0, 0, logger.Logger())
	makeVideoEnc := func(width, height int) (relay.VideoEncoder, error) {
		return codec.NewPassthroughVideoEncoder(width, height)
	}
	conn := relay.New("connection-"+runID, nil, bus, dm, makeVideoEnc)

	makeAudioEnc := func() (audiomixer.Encoder, error) {
		return codec.NewPassthroughAudioEncoder()
	}
	ctx := pipelinectx.New(bus, "pipeline-"+runID, conn, timebase.Identity(), makeAudioEnc)

	if err := conn.Config(reader); err != nil {
		log.Warn("connection config rejected at startup", "error", err)
	}
	if err := ctx.Video().Config(reader); err != nil {
		log.Warn("video mixer config rejected at startup", "error", err)
	}
	if err := ctx.Audio().Config(reader); err != nil {
		log.Warn("audio mixer config rejected at startup", "error", err)
	}
	reader.OnChange(func() {
		if err := conn.Config(reader); err != nil {
			log.Warn("connection config reload rejected", "error", err)
		}
		if err := ctx.Video().Config(reader); err != nil {
			log.Warn("video mixer config reload rejected", "error", err)
		}
		if err := ctx.Audio().Config(reader); err != nil {
			log.Warn("audio mixer config reload rejected", "error", err)
		}
	})

	registerHooks(ctx.Automation(), reader, log)

	ctx.Start()
	log.Info("pipeline started", "config", cfgPath, "destinations", len(destinations))

	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutdown signal received")
	stopDone := make(chan struct{})
	go func() {
		ctx.Stop(true)
		close(stopDone)
	}()

	select {
	case <-stopDone:
		log.Info("pipeline stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Error("forced exit after shutdown timeout")
	}

	ctx.Close(pipelinectx.FreeOnlySelf)
	return nil
}

// registerHooks wires shell/webhook hooks named in the config file's
// hooks.shell.<n> / hooks.webhook.<n> lists, in "event_type=target" form,
// the same assignment syntax the teacher's flag-based hook configuration
// used (see the now-retired cmd/rtmp-server/flags.go hook-script/hook-webhook
// flags).
func registerHooks(mgr *automation.Manager, reader *config.Reader, log *slog.Logger) {
	for i, assignment := range reader.Strings("hooks.shell") {
		eventType, target, ok := splitAssignment(assignment)
		if !ok {
			log.Warn("ignoring malformed hooks.shell entry", "entry", assignment)
			continue
		}
		hook := automation.NewShellHook(fmt.Sprintf("shell-%d", i), target, 30*time.Second)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			log.Warn("failed to register shell hook", "error", err)
		}
	}
	for i, assignment := range reader.Strings("hooks.webhook") {
		eventType, target, ok := splitAssignment(assignment)
		if !ok {
			log.Warn("ignoring malformed hooks.webhook entry", "entry", assignment)
			continue
		}
		hook := automation.NewWebhookHook(fmt.Sprintf("webhook-%d", i), target, 30*time.Second)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			log.Warn("failed to register webhook hook", "error", err)
		}
	}
	if format, ok := reader.GetString("hooks.stdio-format"); ok && format != "" {
		if err := mgr.EnableStdioOutput(format); err != nil {
			log.Warn("failed to enable stdio hook output", "error", err)
		}
	}
}

func splitAssignment(s string) (automation.EventType, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return automation.EventType(s[:i]), s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}
