package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Client triggers summary generation for a stitched transcript
type Client struct {
	triggerURL  string
	callbackURL string
	httpclient  *http.Client
	timeout     time.Duration
	backoff     func() backoff.BackOff
}

type triggerRequest struct {
	RecordingID string `json:"recordingID"`
	ResultURL   string `json:"resultURL,omitempty"`
}

// NewClient creates a summarizer client
func NewClient(triggerURL, callbackURL string) (*Client, error) {
	if triggerURL == "" {
		return nil, fmt.Errorf("no trigger URL")
	}
	res := &Client{triggerURL: triggerURL, callbackURL: callbackURL}
	res.httpclient = &http.Client{Transport: http.DefaultTransport}
	res.timeout = time.Second * 30
	res.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	}
	return res, nil
}

// Trigger asks the summary service to process a recording
func (sp *Client) Trigger(ctx context.Context, recordingID string) error {
	b, err := json.Marshal(triggerRequest{RecordingID: recordingID, ResultURL: sp.callbackURL})
	if err != nil {
		return fmt.Errorf("can't marshal input: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx,
		func() (interface{}, bool, error) {
			ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
			defer cancelF()
			req, err := http.NewRequest(http.MethodPost, sp.triggerURL, bytes.NewReader(b))
			if err != nil {
				return nil, false, err
			}
			req.Header.Set("Content-Type", "application/json")
			req = req.WithContext(ctx)

			goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
			resp, err := sp.httpclient.Do(req)
			if err != nil {
				return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
			}
			defer func() {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
				_ = resp.Body.Close()
			}()
			if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
				err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
				return nil, goapp.IsRetryableCode(resp.StatusCode), err
			}
			return nil, false, nil
		}, sp.backoff())
	return err
}
