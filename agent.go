package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klangbox/card-agent/buildinfo"
	"github.com/klangbox/card-agent/feedback"
	"github.com/klangbox/card-agent/rc522"
	"github.com/klangbox/card-agent/server"
	"github.com/klangbox/card-agent/tls"
)

const defaultLEDCount = 24

// Agent ties the card watcher, the LED feedback driver and the WebSocket
// server together and fans the watcher's event stream out to both.
type Agent struct {
	Logger *log.Logger

	ServerPort    int
	APISecret     string
	EnableTLS     bool
	BootstrapPort int
	LEDCount      int

	Watcher   *rc522.Watcher
	Server    *server.Server
	Driver    *feedback.Driver
	Bootstrap *tls.BootstrapServer

	devicePath string
	stopFanout chan struct{}
}

func NewAgent() *Agent {
	return &Agent{
		Logger:   log.New(os.Stderr, "[agent] ", log.LstdFlags),
		LEDCount: defaultLEDCount,
	}
}

// DevicePath returns the libnfc connection string the agent runs on.
// Empty means auto-detect.
func (a *Agent) DevicePath() string {
	return a.devicePath
}

// Start brings up the watcher, LED driver and server for the given device
// path ("" auto-detects).
func (a *Agent) Start(devicePath string) error {
	if a.Watcher != nil {
		if devicePath == a.devicePath {
			a.Logger.Printf("Agent already running on device: %q", devicePath)
			return nil
		}
		return errors.New("agent is already running")
	}

	watcher, err := rc522.NewWatcher(rc522.WatcherConfig{
		Opener: rc522.TransportOpenerFunc(func() (rc522.Transport, error) {
			return rc522.OpenLibnfcTransport(devicePath)
		}),
	}, a.Logger)
	if err != nil {
		a.Logger.Printf("Error initializing card watcher: %v", err)
		return err
	}
	a.Watcher = watcher
	a.devicePath = devicePath

	cfg := server.Config{
		Watcher:        watcher,
		Port:           a.ServerPort,
		APISecret:      a.APISecret,
		SessionTimeout: 5 * time.Minute,
	}

	if a.EnableTLS {
		certFile, keyFile, err := a.setupTLS()
		if err != nil {
			a.Logger.Printf("TLS setup failed, continuing without TLS: %v", err)
		} else {
			cfg.CertFile = certFile
			cfg.KeyFile = keyFile
		}
	}

	// Both the server and the LED driver consume card events, so the
	// watcher's single stream is teed.
	serverEvents := make(chan rc522.CardEvent, 4)
	ledEvents := make(chan rc522.CardEvent, 4)
	a.stopFanout = make(chan struct{})
	go a.fanOutEvents(watcher.Events(), serverEvents, ledEvents)
	cfg.Events = serverEvents

	a.Driver = feedback.NewDriver(feedback.NewRing(a.LEDCount), feedback.NullStrip{}, a.Logger)
	a.Driver.Start(ledEvents)

	a.Server = server.New(cfg)
	go a.Server.Start()

	watcher.Start()
	return nil
}

// setupTLS generates certificates and starts the CA bootstrap server.
func (a *Agent) setupTLS() (certFile, keyFile string, err error) {
	configDir, err := agentConfigDir()
	if err != nil {
		return "", "", err
	}

	manager := tls.NewManager(configDir)
	certFile, keyFile, err = manager.EnsureCertificates()
	if err != nil {
		return "", "", err
	}

	if a.BootstrapPort > 0 {
		a.Bootstrap = tls.NewBootstrapServer(manager, a.BootstrapPort)
		if err := a.Bootstrap.Start(); err != nil {
			a.Logger.Printf("Failed to start CA bootstrap server: %v", err)
			a.Bootstrap = nil
		}
	}
	return certFile, keyFile, nil
}

// fanOutEvents copies watcher events to every consumer, dropping events
// for consumers that fall behind.
func (a *Agent) fanOutEvents(src <-chan rc522.CardEvent, sinks ...chan rc522.CardEvent) {
	defer func() {
		for _, sink := range sinks {
			close(sink)
		}
	}()

	for {
		select {
		case <-a.stopFanout:
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			for _, sink := range sinks {
				select {
				case sink <- ev:
				default:
				}
			}
		}
	}
}

// Stop shuts down all components. Safe to call when not running.
func (a *Agent) Stop() {
	if a.Watcher == nil && a.Server == nil {
		a.Logger.Println("Agent is not running")
		return
	}

	a.Logger.Println("Stopping agent...")

	if a.Server != nil {
		a.Server.Stop()
		a.Server = nil
	}
	if a.Bootstrap != nil {
		a.Bootstrap.Stop()
		a.Bootstrap = nil
	}
	if a.Driver != nil {
		a.Driver.Stop()
		a.Driver = nil
	}
	if a.Watcher != nil {
		a.Watcher.Stop()
		a.Watcher = nil
	}
	if a.stopFanout != nil {
		close(a.stopFanout)
		a.stopFanout = nil
	}
	a.devicePath = ""

	a.Logger.Println("Agent stopped successfully")
}

// agentConfigDir returns the per-user config directory for the agent,
// creating it when missing.
func agentConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, buildinfo.DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
