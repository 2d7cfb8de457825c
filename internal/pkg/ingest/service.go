package ingest

import (
	"context"
	"io"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/registrar"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Registrar implements the recording lifecycle operations
type Registrar interface {
	CreateRecording(ctx context.Context, in *api.CreateRecordingInput, requestID string) (string, error)
	RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error
	CompleteRecording(ctx context.Context, recordingID string, in *api.CompleteRecordingInput) error
	FailRecording(ctx context.Context, recordingID string, in *api.FailRecordingInput) error
	SaveSegmentResult(ctx context.Context, recordingID string, index int, in *api.SegmentResultInput) error
	MarkSummarized(ctx context.Context, recordingID string) error
}

// DB provides read access for result endpoints
type DB interface {
	LoadTranscript(ctx context.Context, recordingID string) (*persistence.Transcript, error)
	LoadSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error)
	Live(ctx context.Context) error
}

// FileReader loads stored segment audio
type FileReader interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Registrar Registrar
	DB        DB
	Reader    FileReader
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP RECPIPE ingest service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Registrar == nil {
		return errors.New("no registrar")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.Reader == nil {
		return errors.New("no file reader")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("recpipe_ingest", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/recordings", create(data))
	e.POST("/recordings/:id/segments/:idx", segmentArrival(data))
	e.POST("/recordings/:id/complete", complete(data))
	e.POST("/recordings/:id/fail", fail(data))
	e.POST("/recordings/:id/segments/:idx/result", segmentResult(data))
	e.POST("/recordings/:id/summarized", summarized(data))
	e.GET("/recordings/:id/transcript", transcript(data))
	e.GET("/recordings/:id/segments/:idx/audio", segmentAudio(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable)
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type result struct {
	ID string `json:"id"`
}

func create(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("create method")()
		ctx := c.Request().Context()

		var inp api.CreateRecordingInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		requestID := c.Request().Header.Get(api.RequestIDHeader)
		goapp.Log.Info().Str("requestID", requestID).Msg("request info")

		id, err := data.Registrar.CreateRecording(ctx, &inp, requestID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func segmentArrival(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("segment method")()
		ctx := c.Request().Context()

		id, idx, err := takeIDIndex(c)
		if err != nil {
			return err
		}
		var inp api.SegmentArrivalInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if inp.StoragePath == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no storage path")
		}
		if err := data.Registrar.RecordSegmentArrival(ctx, id, idx, &inp); err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func complete(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("complete method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		var inp api.CompleteRecordingInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Registrar.CompleteRecording(ctx, id, &inp); err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func fail(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("fail method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		var inp api.FailRecordingInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Registrar.FailRecording(ctx, id, &inp); err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func segmentResult(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("segment result method")()
		ctx := c.Request().Context()

		id, idx, err := takeIDIndex(c)
		if err != nil {
			return err
		}
		var inp api.SegmentResultInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Registrar.SaveSegmentResult(ctx, id, idx, &inp); err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func summarized(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("summarized method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		if err := data.Registrar.MarkSummarized(ctx, id); err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

type transcriptResult struct {
	ID        string                `json:"id"`
	Content   string                `json:"content"`
	Speakers  []persistence.Speaker `json:"speakers,omitempty"`
	WordCount int32                 `json:"wordCount"`
}

func transcript(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcript method")()
		ctx := c.Request().Context()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		tr, err := data.DB.LoadTranscript(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if tr == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no transcript")
		}
		return c.JSON(http.StatusOK, transcriptResult{ID: tr.RecordingID, Content: tr.Content,
			Speakers: tr.Speakers, WordCount: tr.WordCount})
	}
}

func segmentAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("segment audio method")()
		ctx := c.Request().Context()

		id, idx, err := takeIDIndex(c)
		if err != nil {
			return err
		}
		segs, err := data.DB.LoadSegments(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		for _, seg := range segs {
			if seg.Index == idx && seg.StoragePath.String != "" {
				return serveFile(c, data, seg.StoragePath.String)
			}
		}
		return echo.NewHTTPError(http.StatusNotFound, "no segment")
	}
}

func serveFile(c echo.Context, data *Data, name string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Reader.LoadFile(c.Request().Context(), name)
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
	}
	defer file.Close()
	stGetter, ok := file.(interface{ Stat() (fs.FileInfo, error) })
	if !ok {
		goapp.Log.Error().Msg(`file does implement "interface{ Stat() (fs.FileInfo, error)"`)
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}
	stat, err := stGetter.Stat()
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}

	w := c.Response()
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(stat.Name()))
	http.ServeContent(w, c.Request(), stat.Name(), stat.ModTime(), file)
	return nil
}

func isNotFound(err error) bool {
	var errTest minio.ErrorResponse
	return errors.As(err, &errTest) && errTest.StatusCode == http.StatusNotFound
}

func takeIDIndex(c echo.Context) (string, int, error) {
	id := c.Param("id")
	if id == "" {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "No ID")
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "Wrong index")
	}
	return id, idx, nil
}

func mapError(err error) error {
	if errors.Is(err, registrar.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no recording")
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError)
}
