package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/meowmeet/recpipe/internal/pkg/postgres"
	"github.com/meowmeet/recpipe/internal/pkg/stitch"
	"github.com/meowmeet/recpipe/internal/pkg/summarizer"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
	"github.com/meowmeet/recpipe/internal/pkg/worker"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = cfg.GetInt("worker.count")
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	sum, err := summarizer.NewClient(cfg.GetString("summarizer.triggerUrl"),
		cfg.GetString("summarizer.callbackUrl"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init summarizer")
	}

	data.Stitcher, err = stitch.NewStitcher(&stitch.Data{DB: db, Summarizer: sum,
		PollInterval: cfg.GetDuration("stitch.pollInterval"),
		WaitTimeout:  cfg.GetDuration("stitch.waitTimeout")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init stitcher")
	}

	printBanner()

	go utils.RunPerfEndpoint()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
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
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/     v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/meowmeet/recpipe"))
}
