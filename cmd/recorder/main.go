package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/labstack/gommon/color"

	"github.com/meowmeet/recpipe/internal/pkg/capture"
	"github.com/meowmeet/recpipe/internal/pkg/ingest"
	"github.com/meowmeet/recpipe/internal/pkg/recorder"
	"github.com/meowmeet/recpipe/internal/pkg/segcache"
	"github.com/meowmeet/recpipe/internal/pkg/uploader"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	saver, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init file saver")
	}

	cache, err := segcache.NewCache(cfg.GetString("cache.dir"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init segment cache")
	}

	sessionID := cfg.GetString("session.id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	goapp.Log.Info().Str("ID", sessionID).Msg("session")

	up, err := uploader.NewUploader(&uploader.Data{SessionID: sessionID, Saver: saver, Cache: cache})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init uploader")
	}

	cl, err := ingest.NewClient(cfg.GetString("ingest.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init ingest client")
	}

	proc := capture.NewProcess(&capture.FFmpegDialer{InputFormat: cfg.GetString("capture.inputFormat")})
	go proc.Run(ctx)

	crd, err := recorder.NewCoordinator(&recorder.Data{
		Capture:      proc,
		Uploader:     up,
		Registrar:    cl,
		Indicator:    &logIndicator{},
		Email:        cfg.GetString("recording.email"),
		Title:        cfg.GetString("recording.title"),
		MaxDuration:  cfg.GetDuration("recording.maxDuration"),
		WarnDuration: cfg.GetDuration("recording.warnDuration"),
		WarnF: func(left time.Duration) {
			goapp.Log.Warn().Dur("left", left).Msg("recording ends soon")
		},
	})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init coordinator")
	}

	if err := crd.Start(ctx, cfg.GetString("capture.primary"), cfg.GetString("capture.secondary")); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start recording")
	}

	// SIGUSR1 pauses, SIGUSR2 resumes, SIGINT/SIGTERM stops the session
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
loop:
	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			if err := crd.Pause(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("pause failed")
			}
		case syscall.SIGUSR2:
			if err := crd.Resume(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("resume failed")
			}
		default:
			goapp.Log.Info().Msg("Got exit signal")
			break loop
		}
	}

	stopCtx, cf := context.WithTimeout(context.Background(), time.Second*15)
	defer cf()
	if err := crd.Stop(stopCtx); err != nil && err != recorder.ErrNotRecording {
		goapp.Log.Error().Err(err).Msg("stop failed")
		os.Exit(1)
	}
	goapp.Log.Info().Msg("All code returned. Now exit. Bye")
}

type logIndicator struct{}

func (i *logIndicator) Show(st recorder.State) {
	goapp.Log.Info().Str("state", st.String()).Msg("session state")
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    ____  ________________  ________  ______
   / __ \/ ____/ ____/ __ \/  _/ __ \/ ____/
  / /_/ / __/ / /   / /_/ // // /_/ / __/
 / _, _/ /___/ /___/ ____// // ____/ /___
/_/ |_|_____/\____/_/   /___/_/   /_____/

                                   __
   ________  _________  _________/ /__  _____
  / ___/ _ \/ ___/ __ \/ ___/ __  / _ \/ ___/
 / /  /  __/ /__/ /_/ / /  / /_/ /  __/ /
/_/   \___/\___/\____/_/   \__,_/\___/_/     v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/meowmeet/recpipe"))
}
