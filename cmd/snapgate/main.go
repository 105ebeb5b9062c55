package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cjeanneret/snapgate/internal/config"
	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/hw/camera"
	"github.com/cjeanneret/snapgate/internal/hw/gpio"
	"github.com/cjeanneret/snapgate/internal/hw/status"
	"github.com/cjeanneret/snapgate/internal/logic/capture"
	"github.com/cjeanneret/snapgate/internal/logic/classify"
	"github.com/cjeanneret/snapgate/internal/logic/schedule"
	"github.com/cjeanneret/snapgate/internal/logic/trigger"
	"github.com/cjeanneret/snapgate/internal/metrics"
	"github.com/cjeanneret/snapgate/internal/publish"
	"github.com/cjeanneret/snapgate/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4); -1 keeps the config value")
	mockGPIO := flag.Bool("mock_gpio", false, "force the mock GPIO driver")
	once := flag.Bool("once", false, "take a single capture and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(*debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, cliOverrides{DebugLevel: *debugLevel, MockGPIO: *mockGPIO})

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Device", cfg.Defaults.DeviceName)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	// Metrics
	reg := prometheus.NewRegistry()
	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.Metrics.Enabled {
		sink = metrics.NewPrometheusSink(reg)
	}

	// Capture pipeline
	debug.Step(3, "Initializing capture pipeline")
	publishers, closePublishers, err := newPublishers(cfg)
	if err != nil {
		log.Fatalf("init publishers failed: %v", err)
	}
	defer closePublishers()
	for _, p := range publishers {
		debug.Value("Publisher", p.Name())
	}

	opts := capture.Options{
		Camera:     cam,
		Publishers: publishers,
		Host:       cfg.Defaults.DeviceName,
		Sink:       sink,
	}
	if c := cfg.Classifier; c != nil {
		opts.Classifier = classify.NewHTTPClassifier(c.Endpoint, c.Key, time.Duration(c.TimeoutMs)*time.Millisecond)
		opts.Threshold = c.Threshold
		debug.Value("Classifier", c.Endpoint)
	}
	pipeline, err := capture.NewPipeline(opts)
	if err != nil {
		log.Fatalf("init pipeline failed: %v", err)
	}

	if *once {
		if err := captureOnce(ctx, pipeline, cfg.PipelineTimeout()); err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		return
	}

	// Trigger coordinator
	debug.Step(4, "Initializing trigger coordinator")
	var indicator trigger.Indicator
	if cfg.Status.DisplayPin > 0 {
		led, err := status.NewLED(gpioDriver, cfg.Status.DisplayPin)
		if err != nil {
			log.Fatalf("init status LED failed: %v", err)
		}
		defer led.Close()
		indicator = led
		debug.Value("Status LED pin", cfg.Status.DisplayPin)
	}
	policy, err := newPolicy(cfg)
	if err != nil {
		log.Fatalf("invalid trigger policy: %v", err)
	}
	debug.PrintStruct("Trigger policy", policy)
	coord, err := trigger.NewCoordinator(policy, indicator)
	if err != nil {
		log.Fatalf("init coordinator failed: %v", err)
	}
	runner := trigger.NewRunner(coord, pipeline, trigger.RunnerConfig{
		QueueSize:       cfg.Pipeline.QueueSize,
		PipelineTimeout: cfg.PipelineTimeout(),
	}, sink)

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				debug.Error(fmt.Errorf("%s: %w", name, err))
				cancel()
			}
		}()
	}

	goRun("runner", func() error { return runner.Run(ctx) })

	// Trigger sources
	debug.Step(5, "Starting trigger sources")
	if cfg.Trigger.InterruptPin > 0 {
		watcher, err := gpio.NewWatcher(gpioDriver, cfg.Trigger.InterruptPin, pullMode(cfg.Trigger.Pull), cfg.PollInterval())
		if err != nil {
			log.Fatalf("init trigger input failed: %v", err)
		}
		debug.Value("Trigger pin", watcher.Pin())
		goRun("gpio watcher", func() error {
			return watcher.Run(ctx, func(e gpio.Edge, at time.Time) {
				_ = runner.Notify(trigger.EdgeEvent(e), at)
			})
		})
	}
	if sc := scheduleConfig(cfg); sc.Enabled() {
		sched, err := schedule.New(sc, time.Now())
		if err != nil {
			log.Fatalf("init timer failed: %v", err)
		}
		debug.PrintStruct("Timer", sc)
		goRun("timer", func() error {
			return schedule.Run(ctx, sched, func(at time.Time) {
				_ = runner.Notify(trigger.TimerEvent(), at)
			})
		})
	}

	// Remote command surface
	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		view := web.NewConfigView(policy)
		view.Camera = cfg.Camera.Type
		view.Timer = describeTimer(cfg)
		for _, p := range publishers {
			view.Publishers = append(view.Publishers, p.Name())
		}

		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, runner, coord, view)
		if err != nil {
			log.Fatalf("init web server failed: %v", err)
		}
		if cfg.Metrics.Enabled {
			srv.EnableMetrics(reg)
		}
		runner.OnOutcome(srv.Handlers().RecordOutcome)

		go func() {
			<-ctx.Done()
			broadcaster.Close()
		}()
		goRun("web server", func() error { return srv.Run(ctx) })
	} else if cfg.Metrics.Enabled {
		debug.Info("Metrics enabled but the web server is off; /metrics is not served")
	}

	debug.Summary("snapgate running")
	<-ctx.Done()
	debug.Info("Shutting down")
	wg.Wait()
}

// captureOnce runs the pipeline directly, bypassing the trigger gate.
func captureOnce(ctx context.Context, p trigger.Pipeline, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req := trigger.Request{ID: uuid.NewString(), Event: trigger.CommandEvent("once"), At: time.Now()}
	art, err := p.Invoke(ctx, req)
	if err != nil {
		return err
	}
	debug.Info("Capture %s complete (%d bytes, %d locations)", art.ID, art.Size, len(art.Locations))
	return nil
}

// cliOverrides holds flag values that take precedence over the config file.
type cliOverrides struct {
	DebugLevel int // -1 = keep config
	MockGPIO   bool
}

// validateCLIOverrides checks that CLI overrides are within valid ranges.
func validateCLIOverrides(debugLevel int) error {
	if debugLevel < -1 || debugLevel > debug.LevelTrace {
		return fmt.Errorf("debug_level must be between 0 and %d, got %d", debug.LevelTrace, debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with overrides.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.MockGPIO {
		cfg.Defaults.MockGPIO = true
	}
}

// newPolicy builds the coordinator policy from the trigger section.
func newPolicy(cfg *config.Config) (trigger.Policy, error) {
	edge, err := trigger.ParseEdge(cfg.Trigger.Edge)
	if err != nil {
		return trigger.Policy{}, err
	}
	return trigger.Policy{
		Debounce:          cfg.Debounce(),
		Edge:              edge,
		CommandDebounce:   cfg.CommandDebounce(),
		IndicatorDuration: cfg.DisplayDuration(),
	}, nil
}

func pullMode(pull string) gpio.PinMode {
	switch strings.ToLower(pull) {
	case "down":
		return gpio.InputPullDown
	case "none":
		return gpio.Input
	default:
		return gpio.InputPullUp
	}
}

func scheduleConfig(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Due:        cfg.TimerDue(),
		Period:     cfg.TimerPeriod(),
		Expression: cfg.Timer.Schedule,
		Timezone:   cfg.Timer.Timezone,
	}
}

func describeTimer(cfg *config.Config) string {
	switch sc := scheduleConfig(cfg); {
	case sc.Expression != "":
		return "cron " + sc.Expression
	case sc.Enabled():
		return fmt.Sprintf("due %v, period %v", sc.Due, sc.Period)
	default:
		return ""
	}
}

// newPublishers creates the configured publishers, local storage first.
// The returned function closes the ones holding connections.
func newPublishers(cfg *config.Config) ([]publish.Publisher, func(), error) {
	var (
		pubs    []publish.Publisher
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				debug.Error(err)
			}
		}
	}

	if s := cfg.Storage; s != nil {
		local, err := publish.NewLocal(s.Dir, s.LatestFormat, s.HistoryFormat)
		if err != nil {
			return nil, closeAll, err
		}
		pubs = append(pubs, local)
	}
	if w := cfg.Webhook; w != nil {
		pubs = append(pubs, publish.NewWebhook(w.URL, w.Secret, time.Duration(w.TimeoutMs)*time.Millisecond, w.IncludeImage))
	}
	if r := cfg.Redis; r != nil {
		client := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
		rp := publish.NewRedis(client, r.Channel, r.LatestKey, time.Duration(r.TTLMs)*time.Millisecond)
		pubs = append(pubs, rp)
		closers = append(closers, rp.Close)
	}
	return pubs, closeAll, nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case "mock":
		return camera.NewMock(time.Duration(cfg.Camera.MockDelayMs) * time.Millisecond), nil
	case "command":
		return camera.NewCommand(cfg.Camera.Command, cfg.CameraTimeout())
	case "nikon_d90_gpio":
		return camera.NewNikonD90GPIO(
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}
