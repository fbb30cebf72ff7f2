package main

import (
	"fmt"
	"log"
	"time"

	"fyne.io/systray"

	"github.com/klangbox/card-agent/buildinfo"
	"github.com/klangbox/card-agent/rc522"
	"github.com/klangbox/card-agent/tls"
)

// SystrayApp manages the system tray interface for the card agent.
type SystrayApp struct {
	agent         *Agent
	currentDevice string

	mStatus   *systray.MenuItem
	mReader   *systray.MenuItem
	mCardUID  *systray.MenuItem
	mCardType *systray.MenuItem
	mRecord   *systray.MenuItem
	mURL      *systray.MenuItem
	mStart    *systray.MenuItem
	mStop     *systray.MenuItem

	mDeviceMenu     *systray.MenuItem
	deviceMenuItems map[string]*systray.MenuItem
}

// NewSystrayApp creates a new systray application.
func NewSystrayApp(agent *Agent, initialDevice string) *SystrayApp {
	return &SystrayApp{
		agent:           agent,
		currentDevice:   initialDevice,
		deviceMenuItems: make(map[string]*systray.MenuItem),
	}
}

// Run starts the systray application. Blocks until quit.
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	s.autoStartAgent()
	s.startCardInfoUpdater()
}

func (s *SystrayApp) onExit() {
	s.agent.Stop()
}

func (s *SystrayApp) setupUI() {
	systray.SetTitle(buildinfo.DisplayName)
	systray.SetTooltip(buildinfo.Description)

	s.mStatus = systray.AddMenuItem("Starting...", "Agent status")
	s.mStatus.Disable()
	s.mReader = systray.AddMenuItem("Reader: Disconnected", "Reader connection status")
	s.mReader.Disable()
	s.mURL = systray.AddMenuItem("URL: Not running", "Client WebSocket URL")
	s.mURL.Disable()

	systray.AddSeparator()

	s.mCardUID = systray.AddMenuItem("Card UID: None", "Current card UID")
	s.mCardUID.Disable()
	s.mCardType = systray.AddMenuItem("Card Type: None", "Current card type")
	s.mCardType.Disable()
	s.mRecord = systray.AddMenuItem("Record: None", "Decoded card record")
	s.mRecord.Disable()

	systray.AddSeparator()

	s.mDeviceMenu = systray.AddMenuItem("Reader Device", "Select reader device")
	mRefreshDevices := s.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")
	s.mDeviceMenu.AddSubMenuItemCheckbox("Auto-detect", "Auto-detect device", s.currentDevice == "")

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Agent", "Start the card agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the card agent")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go s.handleMenuEvents(mRefreshDevices, mQuit)
}

func (s *SystrayApp) autoStartAgent() {
	go func() {
		if err := s.agent.Start(s.currentDevice); err == nil {
			s.mStatus.SetTitle("Running")
			s.updateURL()
			s.mStop.Enable()
		} else {
			s.mStatus.SetTitle("Failed to Start")
			s.mStart.Enable()
		}
		s.updateDeviceList()
	}()
}

// startCardInfoUpdater refreshes the card and reader rows from the
// server's last event and the watcher status.
func (s *SystrayApp) startCardInfoUpdater() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		lastUID := ""
		lastType := ""
		lastRecord := ""
		lastReader := ""

		for range ticker.C {
			uid, cardType, record := s.currentCardInfo()
			reader := s.currentReaderInfo()

			if uid != lastUID {
				s.setOrNone(s.mCardUID, "Card UID", uid)
				lastUID = uid
			}
			if cardType != lastType {
				s.setOrNone(s.mCardType, "Card Type", cardType)
				lastType = cardType
			}
			if record != lastRecord {
				s.setOrNone(s.mRecord, "Record", record)
				lastRecord = record
			}
			if reader != lastReader {
				s.mReader.SetTitle("Reader: " + reader)
				lastReader = reader
			}
		}
	}()
}

func (s *SystrayApp) setOrNone(item *systray.MenuItem, label, value string) {
	if value == "" {
		value = "None"
	}
	item.SetTitle(label + ": " + value)
}

func (s *SystrayApp) currentCardInfo() (uid, cardType, record string) {
	if s.agent.Server == nil {
		return "", "", ""
	}
	last := s.agent.Server.LastEvent()
	if last == nil {
		return "", "", ""
	}
	uid = last.UID
	cardType = last.Type
	if last.Record != nil {
		record = fmt.Sprintf("folder %d, mode %d", last.Record.Folder, last.Record.Mode)
	}
	return uid, cardType, record
}

func (s *SystrayApp) currentReaderInfo() string {
	if s.agent.Watcher == nil {
		return "Disconnected"
	}
	status := s.agent.Watcher.Status()
	if !status.Connected {
		return "Disconnected"
	}
	if status.CardPresent {
		return "Connected (card present)"
	}
	return "Connected"
}

func (s *SystrayApp) handleMenuEvents(mRefreshDevices, mQuit *systray.MenuItem) {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.handleStartAgent()
		case <-s.mStop.ClickedCh:
			s.handleStopAgent()
		case <-mRefreshDevices.ClickedCh:
			s.updateDeviceList()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}

		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) handleStartAgent() {
	if err := s.agent.Start(s.currentDevice); err == nil {
		s.mStatus.SetTitle("Running")
		s.updateURL()
		s.mStart.Disable()
		s.mStop.Enable()
	} else {
		s.mStatus.SetTitle("Failed to Start")
	}
}

func (s *SystrayApp) handleStopAgent() {
	s.agent.Stop()
	s.mStatus.SetTitle("Stopped")
	s.mURL.SetTitle("URL: Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

func (s *SystrayApp) handleDeviceSelection() {
	for deviceName, menuItem := range s.deviceMenuItems {
		select {
		case <-menuItem.ClickedCh:
			if s.currentDevice != deviceName {
				s.switchDevice(deviceName, menuItem)
			}
		default:
		}
	}
}

func (s *SystrayApp) switchDevice(deviceName string, menuItem *systray.MenuItem) {
	for _, item := range s.deviceMenuItems {
		item.Uncheck()
	}
	menuItem.Check()
	s.currentDevice = deviceName

	if s.agent.Watcher == nil {
		return
	}
	s.agent.Stop()
	if err := s.agent.Start(s.currentDevice); err == nil {
		s.mStatus.SetTitle("Running")
		s.updateURL()
		s.mStop.Enable()
		s.mStart.Disable()
	} else {
		s.mStatus.SetTitle("Failed to Start")
		s.mURL.SetTitle("URL: Not running")
		s.mStart.Enable()
		s.mStop.Disable()
	}
}

func (s *SystrayApp) updateDeviceList() {
	for _, item := range s.deviceMenuItems {
		item.Hide()
	}
	s.deviceMenuItems = make(map[string]*systray.MenuItem)

	devices, err := rc522.ListDevices()
	if err != nil {
		log.Printf("Error listing devices: %v", err)
		return
	}

	for _, device := range devices {
		isChecked := s.currentDevice == device
		item := s.mDeviceMenu.AddSubMenuItemCheckbox(device, "Select this device", isChecked)
		s.deviceMenuItems[device] = item
	}
}

func (s *SystrayApp) updateURL() {
	ip := "localhost"
	if ips, err := tls.LANAddresses(); err == nil && len(ips) > 0 {
		ip = ips[0]
	}

	proto := "ws"
	if s.agent.EnableTLS {
		proto = "wss"
	}
	s.mURL.SetTitle(fmt.Sprintf("URL: %s://%s:%d/ws", proto, ip, s.agent.ServerPort))
}
