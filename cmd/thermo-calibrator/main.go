// Command thermo-calibrator listens to room sensors and thermostats over MQTT and
// publishes calibration offsets so each thermostat reads the room's real temperature.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
	"github.com/sweeney/thermo-calibrator/internal/config"
	"github.com/sweeney/thermo-calibrator/internal/journal"
	"github.com/sweeney/thermo-calibrator/internal/metrics"
	"github.com/sweeney/thermo-calibrator/internal/mqtt"
	"github.com/sweeney/thermo-calibrator/internal/status"
	"github.com/sweeney/thermo-calibrator/internal/store"
	"github.com/sweeney/thermo-calibrator/internal/web"
)

// processTimeout bounds the store round trip for one event.
const processTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in defaults if empty)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config)")
	debug := flag.Bool("debug", false, "Log classification, aggregation and decision details")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(&cfg, set, *broker, *httpAddr, *heartbeat)

	if err := run(cfg, *debug); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides config values with flags given on the command line.
func applyFlags(cfg *config.Config, set map[string]bool, broker, httpAddr string, heartbeat time.Duration) {
	if set["broker"] {
		cfg.Broker = broker
	}
	if set["http"] {
		if httpAddr == "off" {
			httpAddr = ""
		}
		cfg.HTTP = httpAddr
	}
	if set["heartbeat"] {
		cfg.Heartbeat = heartbeat
	}
}

func newStore(ctx context.Context, cfg config.Config) (calibrator.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendDynamo:
		client, err := store.NewDynamoClient(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewDynamo(client, cfg.Store.Table, cfg.Store.KeyPrefix)
	default:
		return store.NewMemory(cfg.Store.KeyPrefix), nil
	}
}

func statusConfig(cfg config.Config, journalOn bool) status.Config {
	return status.Config{
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.Broker,
		HTTPAddr:     cfg.HTTP,
		Trigger:      cfg.Calibration.Trigger,
		Step:         cfg.Calibration.Step,
		Hysteresis:   cfg.Calibration.Hysteresis,
		CooldownMs:   cfg.Cooldown.Milliseconds(),
		RateLimit:    cfg.RateLimit.Count,
		RateWindowMs: cfg.RateLimit.Window.Milliseconds(),
		Store:        cfg.Store.Backend,
		Journal:      journalOn,
	}
}

func run(cfg config.Config, debug bool) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := newStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	jr := journal.New(cfg.Journal.Brokers, cfg.Journal.Topic)
	defer jr.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg, jr.Enabled()))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	observers := calibrator.Observers{calibrator.NewLogObserver(nil, debug), tracker, m, jr}
	engine := calibrator.New(engineCfg, st, observers, time.Now)

	client, err := mqtt.NewClient(mqtt.Options{
		Broker:    cfg.Broker,
		ClientID:  cfg.ClientID,
		Subscribe: cfg.Subscribe,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()
	tracker.SetMQTTConnected(client.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, m, os.Stdout)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: broker=%s trigger=%s step=%v hysteresis=%v cooldown=%v store=%s rules=%d",
		cfg.Broker, cfg.Calibration.Trigger, cfg.Calibration.Step, cfg.Calibration.Hysteresis,
		cfg.Cooldown, cfg.Store.Backend, len(engineCfg.Rules))

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(engine, client, client, tracker, client.Messages(), heartbeat, sigCh, time.Now)
}

func runLoop(engine *calibrator.Engine, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, msgs <-chan mqtt.Message, heartbeat <-chan time.Time, sig <-chan os.Signal, now func() time.Time) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("mqtt message stream closed")
			}
			handleMessage(engine, publisher, msg, now())

		case t := <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v events=%d commands=%d locations=%d",
					snap.Uptime().Truncate(time.Second), snap.Counts.Events, snap.Counts.Commands, len(snap.Locations))
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			} else {
				log.Printf("heartbeat: %v", t.UTC().Format(time.RFC3339))
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// handleMessage runs one inbound message through the engine and publishes
// any resulting command. Failures are logged; the loop keeps going.
func handleMessage(engine *calibrator.Engine, publisher mqtt.Publisher, msg mqtt.Message, t time.Time) {
	ev := calibrator.EventFromMessage(msg.Topic, msg.Payload)
	if ev.Time.IsZero() {
		ev.Time = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	res, err := engine.Process(ctx, ev)
	cancel()
	if err != nil {
		log.Printf("process %s: %v", msg.Topic, err)
		return
	}
	if res.Command == nil {
		return
	}
	if err := publisher.PublishCommand(*res.Command); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
