package cli

import (
	"fmt"
	"net"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/synheart/synheart-collector/internal/config"
)

var doctorConfigPath string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and print connection info",
	Long:  `Validates the configuration, checks port availability and prints connection examples.`,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorConfigPath, "config", "", "Path to YAML config file")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("🏥 Synheart Collector Environment Check")
	fmt.Println()

	fmt.Printf("Go Version:        %s\n", runtime.Version())
	fmt.Printf("OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	cfg := config.Default()
	if doctorConfigPath != "" {
		loaded, err := config.Load(doctorConfigPath)
		if err != nil {
			fmt.Printf("❌ Config invalid: %v\n", err)
			return err
		}
		cfg = loaded
		fmt.Printf("✅ Config valid: %s (%d devices)\n\n", doctorConfigPath, len(cfg.Devices))
	} else {
		fmt.Println("ℹ️  No config given, checking defaults")
		fmt.Println()
	}

	checkPort := func(name string, enabled bool, port int) {
		if !enabled {
			fmt.Printf("   %-10s disabled\n", name)
			return
		}
		if isPortAvailable(port) {
			fmt.Printf("✅ %-10s port %d is available\n", name, port)
		} else {
			fmt.Printf("⚠️  %-10s port %d is in use\n", name, port)
		}
	}
	checkPort("WebSocket", cfg.Transports.WebSocket.Enabled, cfg.Transports.WebSocket.Port)
	checkPort("SSE", cfg.Transports.SSE.Enabled, cfg.Transports.SSE.Port)
	checkPort("UDP", cfg.Transports.UDP.Enabled, cfg.Transports.UDP.Port)
	checkPort("Ingest", cfg.Ingest.Enabled, cfg.Ingest.Port)
	fmt.Println()

	wsAddr := fmt.Sprintf("ws://%s:%d/metrics", cfg.Transports.WebSocket.Host, cfg.Transports.WebSocket.Port)
	fmt.Println("📡 Connection Examples:")
	fmt.Println()

	fmt.Println("JavaScript/Node.js:")
	fmt.Printf("  const ws = new WebSocket('%s');\n", wsAddr)
	fmt.Println("  ws.onmessage = (event) => {")
	fmt.Println("    const update = JSON.parse(event.data);")
	fmt.Println("    console.log(update.bpm.current, update.breathing.frequency_rpm);")
	fmt.Println("  };")
	fmt.Println()

	fmt.Println("Go:")
	fmt.Printf("  conn, _, err := websocket.DefaultDialer.Dial(%q, nil)\n", wsAddr)
	fmt.Println("  for {")
	fmt.Println("    _, message, err := conn.ReadMessage()")
	fmt.Println("    var update MetricsUpdate")
	fmt.Println("    json.Unmarshal(message, &update)")
	fmt.Println("  }")
	fmt.Println()

	fmt.Println("✅ Environment check complete")
	return nil
}

func isPortAvailable(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
