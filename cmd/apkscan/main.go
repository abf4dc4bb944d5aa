package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/apk-scanner/client/internal/api"
	"github.com/apk-scanner/client/internal/backend"
	"github.com/apk-scanner/client/internal/config"
	"github.com/apk-scanner/client/internal/hasher"
	"github.com/apk-scanner/client/internal/logging"
	"github.com/apk-scanner/client/internal/lookup"
	"github.com/apk-scanner/client/internal/models"
	"github.com/apk-scanner/client/internal/report"
	"github.com/apk-scanner/client/internal/session"
	"github.com/apk-scanner/client/internal/storage"
	"github.com/apk-scanner/client/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var errorColor = color.New(color.FgRed).SprintFunc()

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorColor("[-]"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  apkscan [-config path] serve")
	fmt.Fprintln(os.Stderr, "  apkscan [-config path] scan <file>...")
	fmt.Fprintln(os.Stderr, "  apkscan [-config path] lookup <sha256>")
	flag.PrintDefaults()
}

func main() {
	var (
		configPath = flag.String("config", "apkscan.yaml", "Path to the YAML configuration file")
		backendURL = flag.String("backend", "", "Override the classification service URL")
		noColor    = flag.Bool("no-color", false, "Disable coloured output")
	)
	flag.Usage = usage
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load configuration: %v", err)
	}
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
		if err := cfg.Validate(); err != nil {
			fatalf("Invalid backend URL: %v", err)
		}
	}

	app, err := newApp(cfg)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}

	args := flag.Args()
	switch args[0] {
	case "serve":
		err = app.serve(*configPath)
	case "scan":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		err = app.scan(args[1:])
	case "lookup":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		err = app.lookup(args[1])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fatalf("%v", err)
	}
}

// app wires the scan components from one configuration.
type app struct {
	cfg      *config.AppConfig
	client   *backend.Client
	sessions *session.Manager
}

func newApp(cfg *config.AppConfig) (*app, error) {
	level := cfg.Logging.Level

	client, err := backend.New(backend.Options{
		BaseURL:      cfg.Backend.BaseURL,
		ScanTimeout:  cfg.ScanTimeout(),
		QueryTimeout: cfg.QueryTimeout(),
		UserAgent:    cfg.Backend.UserAgent + "/" + Version,
	}, logging.New("backend", level))
	if err != nil {
		return nil, err
	}

	h := hasher.New(cfg.Hashing.Workers, logging.New("hasher", level))
	orch := upload.NewOrchestrator(h, client, cfg.Backend.MaxBatchBytes, logging.New("upload", level))
	looker := lookup.NewClient(client, logging.New("lookup", level))

	return &app{
		cfg:      cfg,
		client:   client,
		sessions: session.NewManager(orch, looker, logging.New("session", level)),
	}, nil
}

func (a *app) scan(paths []string) error {
	files := make([]models.SelectedFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, models.FileFromPath(p))
	}
	return a.await(a.sessions.StartUpload(files))
}

func (a *app) lookup(raw string) error {
	// A malformed digest has already resolved the session to error.
	t, _ := a.sessions.StartLookup(raw)
	return a.await(t)
}

// await prints the outcome of t and exits non-zero when it failed.
func (a *app) await(t session.Ticket) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := a.sessions.Wait(ctx, t.Generation)
	if err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}

	report.NewPrinter(os.Stdout).Session(snap)
	if snap.Phase == models.PhaseError {
		os.Exit(1)
	}
	return nil
}

func (a *app) serve(configPath string) error {
	cfg := a.cfg

	store, err := storage.NewLocalStore(cfg.GetStagingDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logging.New("echo", cfg.Logging.Level)
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Server.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				strings.HasPrefix(path, "/api/session")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:    store,
		Sessions: a.sessions,
		Backend:  a.client,
		Version:  Version,
		Logger:   logging.New("ws", cfg.Logging.Level),
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           APK Scan Client                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Staging:   %-46s║\n", cfg.GetStagingDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	return e.StartServer(s)
}
