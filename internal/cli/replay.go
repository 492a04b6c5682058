package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/collector"
	"github.com/synheart/synheart-collector/internal/record"
	"github.com/synheart/synheart-collector/internal/transport"
)

var (
	replayConfigPath string
	replayFile       string
	replaySpeed      float64
	replayLoop       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded frame stream into the collector",
	Long: `Reads an NDJSON recording produced by 'run --record' and feeds the
frames into the collector with the original timing. Sessions are
started for the devices in the config; frames for other devices are
dropped.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Path to YAML config file")
	replayCmd.Flags().StringVar(&replayFile, "file", "", "Recording file to replay (required)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "Loop the recording")
	replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	runConfigPath = replayConfigPath
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured (provide --config with a devices section)")
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	replayer := record.NewReplayer(replayFile, replaySpeed, replayLoop)
	count, err := replayer.CountFrames()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	col := collector.New(logger, nil)

	bridge := transport.NewBridge(cfg.Transports.BufferSize)
	col.Register(bridge)
	dispatcher := transport.NewDispatcher(bridge.Updates(), cfg.Transports.BufferSize, logger)

	if cfg.Transports.WebSocket.Enabled {
		ws := transport.NewWebSocketServer(cfg.Transports.WebSocket.Host, cfg.Transports.WebSocket.Port, logger)
		go ws.Start(ctx)
		go ws.BroadcastFromChannel(ctx, dispatcher.Subscribe())
		fmt.Printf("WebSocket:  %s\n", ws.GetAddress())
	}
	if cfg.Transports.SSE.Enabled {
		sse := transport.NewSSEServer(cfg.Transports.SSE.Host, cfg.Transports.SSE.Port,
			encoderFor(cfg.Transports.SSE.Format), logger)
		go sse.Start(ctx)
		go sse.BroadcastFromChannel(ctx, dispatcher.Subscribe())
		fmt.Printf("SSE:        %s\n", sse.GetAddress())
	}
	go dispatcher.Run(ctx)

	for _, d := range cfg.Devices {
		_, err := col.StartSession(ctx, collector.SessionConfig{
			DeviceID:        d.ID,
			Optical:         d.Optical,
			SampleRate:      d.SampleRate,
			BPMWindow:       d.BPMWindow,
			RRWindow:        d.RRWindow,
			Seed:            d.Seed,
			BatchInterval:   cfg.Batch.Interval,
			BatteryInterval: cfg.Batch.BatteryInterval,
		})
		if err != nil {
			return err
		}
	}

	fmt.Printf("Replaying %d frames from %s (speed %.1fx, loop=%v)\n\n",
		count, replayFile, replaySpeed, replayLoop)

	err = replayer.Replay(ctx, col)
	if err != nil && err != context.Canceled {
		return err
	}

	if err := col.Close(); err != nil {
		logger.Warn("session teardown", zap.Error(err))
	}
	bridge.Close()

	fmt.Println("\nReplay complete")
	return nil
}
