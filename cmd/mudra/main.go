package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

var version = "dev"

// statusPollInterval is how often the tray camera line is refreshed.
const statusPollInterval = time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cameraID := flag.Int("camera", 0, "Camera device index (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: error, warn, info, debug (overrides config)")
	noTray := flag.Bool("no-tray", false, "Run without the menu bar icon")
	staticDir := flag.String("static-dir", "", "Directory of web UI files (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "mudra - hand gesture control\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("mudra", version)
		return
	}

	// Only flags given on the command line override the config file.
	var overrides config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			overrides.Addr = addr
		case "camera":
			overrides.CameraID = cameraID
		case "log-level":
			overrides.LogLevel = logLevel
		case "no-tray":
			overrides.NoTray = noTray
		case "static-dir":
			overrides.StaticDir = staticDir
		}
	})

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.Logging.Level)
	logger := config.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("mudra exited with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string, overrides config.FlagOverrides) (config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	dbPath := config.ExpandPath(cfg.Store.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if n, err := st.SeedDefaultActions(); err != nil {
		return fmt.Errorf("seed default actions: %w", err)
	} else if n > 0 {
		logger.Info("installed default gesture actions", "count", n)
	}

	baseline, err := st.Settings().TiltBaseline()
	if err != nil {
		return fmt.Errorf("load tilt baseline: %w", err)
	}
	sensitivity, err := st.Settings().Sensitivity(cfg.Gesture.Sensitivity)
	if err != nil {
		return fmt.Errorf("load sensitivity: %w", err)
	}
	enabled, err := st.Settings().Enabled(true)
	if err != nil {
		return fmt.Errorf("load enabled flag: %w", err)
	}

	plugins := plugin.NewManager(config.ExpandPath(cfg.Plugins.Dir), logger)
	if err := plugins.Discover(); err != nil {
		logger.Warn("plugin discovery failed", "dir", plugins.PluginDir(), "error", err)
	}

	var det detector.Detector
	if d, err := detector.NewMediaPipeDetector(cfg.Detector, logger); err != nil {
		logger.Warn("hand detector unavailable", "error", err)
	} else {
		det = d
	}

	a := app.New(app.Config{
		Camera:           capture.NewCamera(cfg.Camera),
		Detector:         det,
		Store:            st,
		Plugins:          plugins,
		Executor:         plugin.NewExecutor(cfg.PluginTimeout(), logger),
		Logger:           logger,
		Sensitivity:      sensitivity,
		Baseline:         baseline,
		CalibrateOnStart: cfg.Gesture.CalibrateOnStart && baseline == nil,
		MotionThreshold:  cfg.Gesture.MotionThreshold,
		IdleFPS:          cfg.Gesture.IdleFPS,
		ActiveFPS:        cfg.Camera.FPS,
		IdleAfter:        cfg.IdleAfter(),
	})
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing app", "error", err)
		}
	}()
	a.SetEnabled(enabled)

	// A camera failure is reported through the status endpoint rather than
	// stopping the process.
	if err := a.Start(); err != nil {
		logger.Error("detection not started", "error", err)
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		App:       a,
		Store:     st,
		Plugins:   plugins,
		StaticDir: webDir,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Run(ctx, cfg.Server.Addr)
		stop()
	}()

	if cfg.Tray.Enabled {
		runTray(ctx, stop, a, cfg.Server.Addr, logger)
	} else {
		<-ctx.Done()
	}
	stop()

	if err := <-srvErr; err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// runTray blocks on the menu bar loop until ctx is done or Quit is chosen.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, addr string, logger *slog.Logger) {
	tr := tray.New()
	tr.SetEnabled(a.IsEnabled())

	tr.OnToggle(a.SetEnabled)
	tr.OnCalibrate(func() {
		token := a.RequestCalibration()
		logger.Info("calibration requested from tray", "token", token)
	})
	tr.OnOpen(func() {
		if err := openBrowser(browserURL(addr)); err != nil {
			logger.Warn("failed to open browser", "error", err)
		}
	})
	tr.OnQuit(stop)

	events, cancel := a.Subscribe()
	defer cancel()

	go func() {
		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				tr.Quit()
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				tr.SetLastGesture(string(ev.Type))
			case <-ticker.C:
				status, _ := a.CameraStatus()
				tr.SetStatus(string(status))
				tr.SetEnabled(a.IsEnabled())
			}
		}
	}()

	tr.Run()
}

// browserURL turns a listen address into a URL a browser can open.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
