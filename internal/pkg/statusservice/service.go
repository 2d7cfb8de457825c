package statusservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/status"
	"github.com/meowmeet/recpipe/internal/pkg/utils"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads recording progress info
type DB interface {
	LoadRecording(ctx context.Context, id string) (*persistence.Recording, error)
	LoadSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error)
}

// WSConnHandler manages websocket subscriptions
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP RECPIPE status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("recpipe_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type segmentResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type result struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	Title        string          `json:"title,omitempty"`
	SegmentCount int             `json:"segmentCount"`
	Progress     int32           `json:"progress,omitempty"`
	Segments     []segmentResult `json:"segments,omitempty"`
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		res, err := loadResult(c.Request().Context(), data.DB, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if res == nil {
			res = &result{ID: id, Status: "NOT_FOUND", Error: "NOT_FOUND"}
		}
		return c.JSON(http.StatusOK, res)
	}
}

func loadResult(ctx context.Context, db DB, id string) (*result, error) {
	rec, err := db.LoadRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	segs, err := db.LoadSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load segments: %w", err)
	}
	return mapResult(rec, segs), nil
}

func mapResult(rec *persistence.Recording, segs []*persistence.Segment) *result {
	res := &result{ID: rec.ID, Status: rec.Status, Error: utils.FromSQLStr(rec.Error),
		Title: utils.FromSQLStr(rec.Title), SegmentCount: rec.SegmentCount}
	done := 0
	for _, seg := range segs {
		res.Segments = append(res.Segments, segmentResult{Index: seg.Index, Status: seg.Status,
			Error: utils.FromSQLStr(seg.Error)})
		if status.SegmentFrom(seg.Status).Terminal() {
			done++
		}
	}
	res.Progress = progress(rec, done, len(segs))
	return res
}

// progress maps the pipeline stage to a rough percentage,
// segment transcription fills the 10-80 band
func progress(rec *persistence.Recording, done, total int) int32 {
	switch status.RecordingFrom(rec.Status) {
	case status.RecCompleted:
		return 100
	case status.RecSummarizing:
		return 90
	case status.RecTranscribing:
		fallthrough
	case status.RecUploading:
		if total == 0 {
			return 10
		}
		return int32(10 + done*70/total)
	case status.RecRecording:
		return 5
	}
	return 0
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
