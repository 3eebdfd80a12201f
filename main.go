package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/api"
	"github.com/lmeyer/session-scribe/internal/capture"
	"github.com/lmeyer/session-scribe/internal/config"
	"github.com/lmeyer/session-scribe/internal/logger"
	"github.com/lmeyer/session-scribe/internal/monitors"
	"github.com/lmeyer/session-scribe/internal/screenshot"
	"github.com/lmeyer/session-scribe/internal/storage"
	"github.com/lmeyer/session-scribe/internal/timeline"
	"github.com/lmeyer/session-scribe/internal/websocket"
	"github.com/lmeyer/session-scribe/internal/writer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	// Ensure the screenshot directory exists
	if err := os.MkdirAll(cfg.ScreenshotDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create screenshot directory")
	}

	// Set up the durable store
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up the timeline bus, continuing the sequence numbering past the
	// previous run's durable rows; every ingested event also feeds the live
	// stream.
	lastDurable, err := store.MaxSequence()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read last durable sequence")
	}
	bus := timeline.NewBusStartingAt(lastDurable)
	bus.Subscribe(hub.BroadcastEvent)

	// Set up the screenshot trigger. References that resolve after their event
	// was flushed land in the store instead of the buffer.
	capturer := capture.NewScreenCapturer(cfg.ScreenshotDir)
	trigger, err := screenshot.NewTrigger(screenshot.Options{
		Capturer: capturer,
		Attacher: screenshot.AttacherFunc(func(seq uint64, ref string) bool {
			if bus.AttachScreenshot(seq, ref) {
				return true
			}
			ok, err := store.UpdateScreenshot(seq, ref)
			if err != nil {
				log.Error().Err(err).Uint64("seq", seq).Msg("Failed to attach screenshot to stored event")
				return false
			}
			return ok
		}),
		MinInterval: cfg.ScreenshotMinInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize screenshot trigger")
	}

	// Set up monitors
	keyboard := monitors.NewKeyboardMonitor(bus)
	mouse := monitors.NewMouseMonitor(bus, trigger)
	tracker := monitors.NewWindowTracker(bus, monitors.WindowQueryFunc(func() (monitors.WindowInfo, error) {
		app, title, pid, err := capture.FrontmostWindow()
		return monitors.WindowInfo{App: app, Title: title, PID: pid}, err
	}), cfg.WindowPollInterval)
	selection := monitors.NewSelectionMonitor(bus, monitors.SelectionQueryFunc(capture.SelectedText),
		cfg.SelectionPollInterval, cfg.SelectionMinGap)

	// Set up the timeline writer
	w, err := writer.NewWriter(bus, store, writer.Options{
		Interval:   cfg.FlushInterval,
		Retain:     cfg.RetainEvents,
		ExportPath: cfg.TimelinePath,
		Format:     cfg.TimelineFmt,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize timeline writer")
	}
	if err := w.ScheduleExports(cfg.ExportSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule timeline exports")
	}

	// Install the input tap and start the capture pipeline
	keyboard.Start()
	mouse.Start()
	tapCtx, stopTap := context.WithCancel(context.Background())
	defer stopTap()
	tap := capture.NewTap(keyboard, mouse)
	tapErr := make(chan error, 1)
	go func() {
		tapErr <- tap.Run(tapCtx)
	}()

	go tracker.Run()
	go selection.Run()
	go w.Run()

	// Set up router and server
	router := api.NewRouter(hub, bus, store, w, tracker, trigger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("API server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-tapErr:
		// The tap only returns early when installation failed or the
		// permission was revoked; without it there is nothing to record.
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Input event tap failed")
		}
	case <-quit:
	}
	log.Info().Msg("Shutting down...")

	// Stop producers first so the final flush sees a quiet buffer.
	keyboard.Stop()
	mouse.Stop()
	stopTap()
	tracker.Stop()
	selection.Stop()

	// Let in-flight captures finish, then write the final timeline.
	trigger.Close(cfg.ShutdownGrace)
	w.Stop()
	if _, err := w.Export(""); err != nil {
		log.Error().Err(err).Msg("Final timeline export failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Recorder exiting")
}
