package main

import (
	"context"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	cnsapi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"

	"github.com/meowmeet/recpipe/internal/pkg/consul"
	"github.com/meowmeet/recpipe/internal/pkg/ingest"
	"github.com/meowmeet/recpipe/internal/pkg/postgres"
	"github.com/meowmeet/recpipe/internal/pkg/registrar"
	"github.com/meowmeet/recpipe/internal/pkg/transcriber"
	trapi "github.com/meowmeet/recpipe/internal/pkg/transcriber/api"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &ingest.Data{}
	data.Port = cfg.GetInt("port")
	var err error

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	addDBLog(dbConfig)

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	data.Reader, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	tr, err := initTranscriber(ctx, cfg.GetString("transcriber.callbackUrl"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}

	data.Registrar, err = registrar.NewRegistrar(&registrar.Data{DB: db, MsgSender: sender, Transcriber: tr})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init registrar")
	}

	go utils.RunPerfEndpoint()

	err = ingest.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

// initTranscriber prefers consul service discovery,
// falls back to a static URL when no consul address is configured
func initTranscriber(ctx context.Context, callbackURL string) (trapi.Transcriber, error) {
	cfg := goapp.Config
	if cfg.GetString("consul.address") != "" {
		cnsCfg := cnsapi.DefaultConfig()
		cnsCfg.Address = cfg.GetString("consul.address")
		prv, err := consul.NewProvider(cnsCfg, cfg.GetString("consul.srvName"), callbackURL)
		if err != nil {
			return nil, err
		}
		if _, err := prv.StartRegistryLoop(ctx, cfg.GetDuration("consul.checkInterval")); err != nil {
			return nil, err
		}
		return prv, nil
	}
	return transcriber.NewClient(cfg.GetString("transcriber.triggerUrl"), callbackURL)
}

func addDBLog(dbConfig *pgxpool.Config) {
	logFunc := goapp.Log.Info().Msg
	dbConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		logFunc("before connect")
		return nil
	}
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logFunc("after connect")
		return nil
	}
	dbConfig.BeforeAcquire = func(ctx context.Context, c *pgx.Conn) bool {
		logFunc("before acquire")
		return true
	}
	dbConfig.AfterRelease = func(c *pgx.Conn) bool {
		logFunc("after release")
		return true
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

   _                      __
  (_)___  ____ ____  _____/ /_
 / / __ \/ __ ` + "`" + `/ _ \/ ___/ __/
/ / / / / /_/ /  __(__  ) /_
/_/_/ /_/\__, /\___/____/\__/   v: %s
        /____/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/meowmeet/recpipe"))
}
