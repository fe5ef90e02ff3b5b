// Command valve-supervisor drives a motorized valve's close line from its
// sense inputs and reports what it does over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/valve-supervisor/internal/config"
	"github.com/sweeney/valve-supervisor/internal/gpio"
	"github.com/sweeney/valve-supervisor/internal/logic"
	"github.com/sweeney/valve-supervisor/internal/mqtt"
	"github.com/sweeney/valve-supervisor/internal/status"
	"github.com/sweeney/valve-supervisor/internal/supervisor"
	"github.com/sweeney/valve-supervisor/internal/timing"
	"github.com/sweeney/valve-supervisor/internal/web"
)

// eventQueue bounds supervisor events waiting for the forwarder.
const eventQueue = 64

func main() {
	cfg, err := config.FromArgs(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config) error {
	// Initialize GPIO
	lines, err := gpio.Open(cfg.Backend, cfg.Chip, cfg.PinMap())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	// Print state mode
	if cfg.PrintState {
		return printState(os.Stdout, lines)
	}

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if cfg.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.Broker)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend,
		Chip:        chipName(cfg),
		Pins:        cfg.PinNames(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Printf("started: backend=%s pins=%v broker=%s heartbeat=%v", cfg.Backend, cfg.PinNames(), cfg.Broker, cfg.Heartbeat)

	d := &daemon{
		io:        lines,
		clock:     timing.Busy{},
		publisher: publisher,
		conn:      publisher,
		tracker:   tracker,
		heartbeat: heartbeat,
		now:       time.Now,
		skipBlink: cfg.SkipBlink,
	}
	return d.run(context.Background(), sigCh)
}

// daemon ties the supervisor loop to its out-of-band telemetry. The loop
// never waits on MQTT: events pass through a bounded queue to a forwarder
// goroutine and are dropped, with a count, when the queue is full.
type daemon struct {
	io        gpio.IO
	clock     timing.Clock
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	heartbeat <-chan time.Time
	now       func() time.Time
	skipBlink bool

	dropped atomic.Int64
}

func (d *daemon) run(parent context.Context, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	d.publishStatus(mqtt.SystemStartup, "", true)

	// Record the signal name before cancelling so SHUTDOWN can carry it.
	var reason atomic.Value
	reason.Store("CONTEXT_DONE")
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason.Store(signalName(s))
			cancel()
		case <-ctx.Done():
		}
	}()

	events := make(chan logic.Event, eventQueue)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.forward(events)
	}()
	go func() {
		defer wg.Done()
		d.heartbeats(ctx)
	}()

	sup := supervisor.New(d.io, d.clock, d.enqueue(events), d.tracker)
	err := sup.Run(ctx, d.skipBlink)
	cancel()
	close(events)
	wg.Wait()

	why := reason.Load().(string)
	if err != nil {
		why = "ERROR"
	}
	d.publishStatus(mqtt.SystemShutdown, why, true)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// enqueue returns a notifier that hands events to the forwarder without
// blocking the loop.
func (d *daemon) enqueue(events chan<- logic.Event) supervisor.NotifierFunc {
	return func(e logic.Event) {
		select {
		case events <- e:
		default:
			if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Printf("event queue full, dropped %d events", n)
			}
		}
	}
}

// forward logs, records and publishes supervisor events until events is closed.
func (d *daemon) forward(events <-chan logic.Event) {
	for e := range events {
		if e.Attempt > 0 {
			log.Printf("event: %s attempt=%d", e.Type, e.Attempt)
		} else {
			log.Printf("event: %s (fake_close=%d close_attempts=%d)", e.Type, e.Counters.FakeClose, e.Counters.CloseAttempts)
		}
		d.tracker.RecordEvent(e)
		if err := d.publisher.Publish(e); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
		d.refreshMQTT()
	}
}

func (d *daemon) heartbeats(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v passes=%d pulses=%d give_ups=%d",
				snap.Uptime().Truncate(time.Second), snap.Supervisor.Totals.Passes,
				snap.Supervisor.Totals.Pulses, snap.Supervisor.Totals.GiveUps)
			d.publishStatus(mqtt.SystemHeartbeat, "", false)
		}
	}
}

// publishStatus sends a system event carrying a full status snapshot.
func (d *daemon) publishStatus(event, reason string, retained bool) {
	d.refreshMQTT()
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	if event != mqtt.SystemHeartbeat {
		log.Printf("published %s event", event)
	}
}

func (d *daemon) refreshMQTT() {
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func chipName(cfg *config.Config) string {
	if cfg.Backend == gpio.BackendPeriph {
		return ""
	}
	return cfg.Chip
}

// printState reads each sense line once and writes a one-line summary.
func printState(w io.Writer, lines gpio.IO) error {
	var levels [3]bool
	for i, pin := range gpio.Inputs {
		level, err := lines.Read(pin)
		if err != nil {
			return fmt.Errorf("read %s: %w", pin, err)
		}
		levels[i] = level
	}
	fmt.Fprintf(w, "WIRING: %s, VALVE: %s, TRIGGER: %s\n",
		levelString(levels[0], "OK", "BROKEN"),
		levelString(levels[1], "OPEN", "CLOSED"),
		levelString(levels[2], "NORMAL", "ASSERTED"))
	return nil
}

func levelString(high bool, ifHigh, ifLow string) string {
	if high {
		return ifHigh
	}
	return ifLow
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
