package worker

import (
	"context"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/meowmeet/recpipe/internal/pkg/messages"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/status"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
	"github.com/meowmeet/recpipe/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides persistence functionality
type DB interface {
	LoadRecording(ctx context.Context, id string) (*persistence.Recording, error)
	UpdateRecording(ctx context.Context, rec *persistence.Recording) error
}

// Stitcher assembles the final transcript
type Stitcher interface {
	Run(ctx context.Context, recordingID string) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Stitcher    Stitcher
	Testing     bool
}

// StartWorkerService starts the queue listeners for stitch jobs and failure escalations.
// Returns a channel closed when all pool workers have finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	stitchWM := gue.WorkMap{
		messages.Stitch: handler.Create(data, handleStitch,
			handler.DefaultOpts[messages.StitchMessage]().WithFailure(sendFail(data)).
				WithTimeout(time.Minute*10).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}
	failWM := gue.WorkMap{
		messages.Fail: handler.Create(data, handleFail,
			handler.DefaultOpts[messages.FailMessage]().WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	res := make(chan struct{}, 1)
	done := make(chan struct{}, 2)
	for _, pd := range []struct {
		queue string
		wm    gue.WorkMap
	}{{queue: messages.Stitch, wm: stitchWM}, {queue: messages.Fail, wm: failWM}} {
		pool, err := gue.NewWorkerPool(
			data.GueClient, pd.wm, data.WorkerCount,
			gue.WithPoolQueue(pd.queue),
			gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
			gue.WithPoolPollInterval(500*time.Millisecond),
			gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
			gue.WithPoolID("stitch-worker-"+pd.queue),
		)
		if err != nil {
			return nil, fmt.Errorf("could not build gue workers pool: %w", err)
		}
		go func(queue string) {
			goapp.Log.Info().Str("queue", queue).Msg("Starting workers")
			if err := pool.Run(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("pool error")
			}
			goapp.Log.Info().Str("queue", queue).Msg("Pool workers finished")
			done <- struct{}{}
		}(pd.queue)
	}
	go func() {
		<-done
		<-done
		res <- struct{}{}
	}()
	return res, nil
}

func handleStitch(ctx context.Context, m *messages.StitchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("requestID", m.RequestID).Msg("handling stitch")
	if err := data.Stitcher.Run(ctx, m.ID); err != nil {
		return fmt.Errorf("can't stitch: %w", err)
	}
	return nil
}

// sendFail escalates a dropped stitch job into the fail queue
func sendFail(data *ServiceData) func(context.Context, *messages.StitchMessage, error) error {
	return func(ctx context.Context, m *messages.StitchMessage, err error) error {
		return data.MsgSender.SendMessage(ctx, &messages.FailMessage{
			QueueMessage: amessages.QueueMessage{ID: m.ID}, Reason: err.Error()}, messages.Fail)
	}
}

func handleFail(ctx context.Context, m *messages.FailMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("reason", m.Reason).Msg("handling failure")
	rec, err := data.DB.LoadRecording(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no recording")
		return nil
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", rec.Status).Msg("already terminal - ignore")
		return nil
	}
	rec.Status = status.RecFailed.String()
	rec.Error = utils.ToSQLStr(m.Reason)
	rec.Completed = utils.ToSQLTime(time.Now())
	if err := data.DB.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't save recording: %w", err)
	}
	if err := data.MsgSender.SendMessage(ctx, &amessages.QueueMessage{ID: m.ID}, messages.StatusChange); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	if err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: m.ID}, Type: amessages.InformTypeFailed,
		At: time.Now()}, messages.Inform); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Stitcher == nil {
		return fmt.Errorf("no stitcher")
	}
	return nil
}
