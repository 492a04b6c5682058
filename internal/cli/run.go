package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/collector"
	"github.com/synheart/synheart-collector/internal/config"
	"github.com/synheart/synheart-collector/internal/encoding"
	"github.com/synheart/synheart-collector/internal/ingest"
	"github.com/synheart/synheart-collector/internal/models"
	"github.com/synheart/synheart-collector/internal/record"
	"github.com/synheart/synheart-collector/internal/simulate"
	"github.com/synheart/synheart-collector/internal/transport"
)

var (
	runConfigPath string
	runSimulate   bool
	runRecordPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the collector and its delivery endpoints",
	Long: `Starts per-device sessions, the frame ingest endpoint and the enabled
delivery transports. With --simulate, a built-in simulator generates
frames for every configured device instead of waiting for real input.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to YAML config file")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Generate frames with the built-in simulator")
	runCmd.Flags().StringVar(&runRecordPath, "record", "", "Record inbound raw frames to an NDJSON file")
}

func loadRunConfig() (config.Config, error) {
	if runConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(runConfigPath)
}

// recordingSink tees raw frames into a recorder before the collector.
type recordingSink struct {
	next interface {
		FeedRawFrame(deviceID string, kind models.FrameKind, data []byte)
	}
	rec *record.Recorder
	log *zap.Logger
}

func (s *recordingSink) FeedRawFrame(deviceID string, kind models.FrameKind, data []byte) {
	if err := s.rec.Record(deviceID, kind, data); err != nil {
		s.log.Warn("failed to record frame", zap.Error(err))
	}
	s.next.FeedRawFrame(deviceID, kind, data)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()

	col := collector.New(logger, nil)

	// Delivery side: observer bridge feeding the fan-out dispatcher.
	bridge := transport.NewBridge(cfg.Transports.BufferSize)
	col.Register(bridge)
	dispatcher := transport.NewDispatcher(bridge.Updates(), cfg.Transports.BufferSize, logger)

	var natsPub *transport.NATSPublisher

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
	if cfg.Transports.UDP.Enabled {
		udp := transport.NewUDPServer(cfg.Transports.UDP.Host, cfg.Transports.UDP.Port,
			encoderFor(cfg.Transports.UDP.Format), logger)
		go udp.Start(ctx)
		go udp.BroadcastFromChannel(ctx, dispatcher.Subscribe())
		fmt.Printf("UDP:        %s\n", udp.GetAddress())
	}
	if cfg.Transports.NATS.Enabled {
		natsPub = transport.NewNATSPublisher(cfg.Transports.NATS.URL, cfg.Transports.NATS.SubjectPrefix,
			encoderFor(cfg.Transports.NATS.Format), logger)
		if err := natsPub.Connect(); err != nil {
			return err
		}
		defer natsPub.Close()
		go natsPub.PublishFromChannel(ctx, dispatcher.Subscribe())
		fmt.Printf("NATS:       %s (%s.<device>)\n", cfg.Transports.NATS.URL, cfg.Transports.NATS.SubjectPrefix)
	}

	go dispatcher.Run(ctx)

	// Inbound side: optional on-disk tee, then the collector.
	var sink interface {
		FeedRawFrame(deviceID string, kind models.FrameKind, data []byte)
	} = col
	if runRecordPath != "" {
		rec, err := record.NewRecorder(runRecordPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		sink = &recordingSink{next: col, rec: rec, log: logger}
		fmt.Printf("Recording:  %s\n", runRecordPath)
	}

	if cfg.Ingest.Enabled {
		srv := ingest.NewServer(ingest.Config{
			Host:       cfg.Ingest.Host,
			Port:       cfg.Ingest.Port,
			Token:      cfg.Ingest.Token,
			AcceptGzip: cfg.Ingest.AcceptGzip,
		}, sink, logger)
		go srv.Start(ctx)
		fmt.Printf("Ingest:     %s/v1/frames\n", srv.GetAddress())
	}

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

	if runSimulate {
		for _, d := range cfg.Devices {
			profile := simulate.ProfileStrap
			if d.Optical {
				profile = simulate.ProfileOptical
			}
			sim := simulate.New(simulate.Config{
				DeviceID:   d.ID,
				Profile:    profile,
				Seed:       d.Seed,
				SampleRate: d.SampleRate,
			}, logger)
			go sim.Run(ctx, sink)
		}
		fmt.Printf("Simulator:  %d device(s)\n", len(cfg.Devices))
	}

	fmt.Printf("\nCollector running with %d device session(s)\n", len(cfg.Devices))

	<-ctx.Done()

	// Give in-flight broadcasts a moment before tearing sessions down.
	time.Sleep(100 * time.Millisecond)
	if err := col.Close(); err != nil {
		logger.Warn("session teardown", zap.Error(err))
	}
	bridge.Close()

	fmt.Println("\nShutdown complete")
	return nil
}

func encoderFor(format string) encoding.Encoder {
	return encoding.NewEncoder(encoding.Format(format))
}
