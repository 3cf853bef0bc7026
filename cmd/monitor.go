package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"trafficcam-capture/internal/client"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/internal/metrics"
	"trafficcam-capture/internal/monitor"
	"trafficcam-capture/internal/notify"
	"trafficcam-capture/internal/storage"
)

var serviceAction string // "install", "uninstall", "start", "stop"

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface
type program struct {
	cfg *config.Config

	cancel context.CancelFunc
	done   chan struct{}

	metrics *metrics.Metrics

	mu      sync.Mutex
	server  *http.Server
	monitor *monitor.Monitor
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.metrics = metrics.New()
	p.serveStatus()

	go func() {
		err := p.run(ctx)
		close(p.done)
		if err != nil {
			slog.Error("monitor terminated", "error", err)
			os.Exit(1)
		}
	}()
	return nil
}

// run owns every resource of the poll loop and releases them before returning.
func (p *program) run(ctx context.Context) error {
	meta, err := openMetadata(ctx, p.cfg)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer meta.Close()

	cat, err := loadCatalog(p.cfg)
	if err != nil {
		return fmt.Errorf("failed to load camera catalog: %w", err)
	}

	orch, err := newOrchestrator(p.cfg, meta, p.metrics)
	if err != nil {
		return fmt.Errorf("failed to build capture pipeline: %w", err)
	}
	defer orch.Close()

	processed := seedProcessed(ctx, p.cfg, meta)

	deps := monitor.Deps{
		Feed:      client.NewIncidentFeed(p.cfg.Feed, p.cfg.Credentials),
		Cameras:   cameraChain(p.cfg, cat),
		Capturer:  orch,
		Incidents: meta,
		Recorder:  p.metrics,
	}
	if p.cfg.MQTT.Broker != "" {
		c, err := notify.Connect(p.cfg.MQTT)
		if err != nil {
			slog.Error("mqtt unavailable, capture summaries will not be published", "error", err)
		} else {
			defer c.Disconnect(250)
			n := notify.NewMQTTNotifier(c, p.cfg.MQTT.Topic, p.cfg.MQTT.QoS)
			defer func() {
				published, failed := n.Stats()
				slog.Info("capture summaries", "published", published, "failed", failed)
			}()
			deps.Notifier = n
		}
	}

	mon := monitor.New(deps, monitor.Options{
		Interval: p.cfg.Monitor.Interval,
		Filter:   monitor.NewKeywordFilter(p.cfg.Monitor.CrashKeywords),
	}, processed)
	p.mu.Lock()
	p.monitor = mon
	p.mu.Unlock()

	runErr := mon.Run(ctx)
	saveProcessed(p.cfg, processed)
	return runErr
}

// serveStatus exposes /metrics and /health in the background.
func (p *program) serveStatus() {
	r := mux.NewRouter()
	r.Handle("/metrics", p.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", p.health).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%s", p.cfg.Metrics.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.mu.Lock()
	p.server = srv
	p.mu.Unlock()

	slog.Info("status server listening", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
		}
	}()
}

func (p *program) health(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	mon := p.monitor
	p.mu.Unlock()

	status := map[string]any{"status": "ok"}
	if mon == nil {
		status["status"] = "starting"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (p *program) Stop(s service.Service) error {
	slog.Info("stopping service")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	srv := p.server
	p.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("status server forced to shutdown", "error", err)
		}
	}
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

// seedProcessed loads the ids already known to the metadata store and the state file.
func seedProcessed(ctx context.Context, cfg *config.Config, meta storage.MetadataStore) *monitor.ProcessedSet {
	processed := monitor.NewProcessedSet()
	ids, err := meta.IncidentIDs(ctx)
	if err != nil {
		slog.Warn("failed to load processed incidents from database", "error", err)
	}
	processed.Seed(ids)
	if cfg.Monitor.StateFile != "" {
		if err := processed.LoadFile(cfg.Monitor.StateFile); err != nil {
			slog.Warn("failed to load state file", "path", cfg.Monitor.StateFile, "error", err)
		}
	}
	slog.Info("processed incidents loaded", "count", processed.Len())
	return processed
}

func saveProcessed(cfg *config.Config, processed *monitor.ProcessedSet) {
	if cfg.Monitor.StateFile == "" {
		return
	}
	if err := processed.SaveFile(cfg.Monitor.StateFile); err != nil {
		slog.Error("failed to write state file", "path", cfg.Monitor.StateFile, "error", err)
		return
	}
	slog.Info("state file written", "path", cfg.Monitor.StateFile, "count", processed.Len())
}

// --- COMMAND ---

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the incident feed and capture video for new crashes",
	Long: `Starts the long-running poll loop. Every new crash incident triggers a capture
across its associated cameras. Exposes /metrics and /health on metrics.port.
Can be installed as a system service.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		svcConfig := &service.Config{
			Name:        "trafficcam-monitor",
			DisplayName: "Traffic Camera Incident Capture",
			Description: "Captures traffic camera video for new road incidents",
			Arguments:   []string{"monitor"},
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}

		prg := &program{cfg: cfg}
		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal(err)
		}

		if serviceAction != "" {
			if err := service.Control(s, serviceAction); err != nil {
				log.Fatalf("Failed to %s service: %v", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// Blocks until the service manager or an interrupt stops the program.
		logger, err := s.Logger(nil)
		if err != nil {
			log.Fatal(err)
		}
		if err = s.Run(); err != nil {
			logger.Error(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
}
