// Command card-agent runs an RC522 card reader agent for the Klangbox
// audio player. It polls the reader for MIFARE Classic cards, decodes the
// playback record stored on them, and broadcasts card events to local
// clients over WebSocket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/systray"

	"github.com/klangbox/card-agent/buildinfo"
)

const (
	defaultPort          = 18080
	defaultBootstrapPort = 18081
)

var (
	devicePathFlag    string
	portFlag          int
	cliFlag           bool
	apiSecretFlag     string
	tlsFlag           bool
	bootstrapPortFlag int
	ledCountFlag      int
	versionFlag       bool
)

func main() {
	flag.StringVar(&devicePathFlag, "device", "", "libnfc connection string for the reader (optional, auto-detects)")
	flag.IntVar(&portFlag, "port", defaultPort, "Port to listen on for the client interface")
	flag.BoolVar(&cliFlag, "cli", false, "Run in CLI mode (default: system tray mode)")
	flag.StringVar(&apiSecretFlag, "api-secret", "", "Shared secret for the session handshake (optional)")
	flag.BoolVar(&tlsFlag, "tls", false, "Serve over TLS with an auto-generated local CA")
	flag.IntVar(&bootstrapPortFlag, "bootstrap-port", defaultBootstrapPort, "Port for the plain-HTTP CA download server (with -tls)")
	flag.IntVar(&ledCountFlag, "leds", defaultLEDCount, "Number of pixels on the feedback LED ring")
	flag.BoolVar(&versionFlag, "version", false, "Print version information and exit")
	flag.Parse()

	if versionFlag {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	agent := NewAgent()
	agent.ServerPort = portFlag
	agent.APISecret = apiSecretFlag
	agent.EnableTLS = tlsFlag
	agent.LEDCount = ledCountFlag
	if tlsFlag {
		agent.BootstrapPort = bootstrapPortFlag
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cliFlag {
		if err := agent.Start(devicePathFlag); err != nil {
			log.Fatalf("Failed to start agent: %v", err)
		}
		defer agent.Stop()

		<-sigChan
		log.Println("Shutdown signal received, stopping agent...")
		return
	}

	app := NewSystrayApp(agent, devicePathFlag)
	go func() {
		<-sigChan
		systray.Quit()
	}()
	app.Run()
}
