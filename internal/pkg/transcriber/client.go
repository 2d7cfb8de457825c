package transcriber

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

// Client triggers segment transcription on a remote ASR service
type Client struct {
	triggerURL  string
	callbackURL string
	httpclient  *http.Client
	timeout     time.Duration
	backoff     func() backoff.BackOff
}

type triggerRequest struct {
	RecordingID  string `json:"recordingID"`
	SegmentIndex int    `json:"segmentIndex"`
	AudioPath    string `json:"audioPath"`
	ResultURL    string `json:"resultURL,omitempty"`
}

// NewClient creates a transcriber client.
// callbackURL is where the ASR service posts the segment result
func NewClient(triggerURL, callbackURL string) (*Client, error) {
	if triggerURL == "" {
		return nil, fmt.Errorf("no trigger URL")
	}
	res := &Client{triggerURL: triggerURL, callbackURL: callbackURL}
	res.httpclient = &http.Client{Transport: newTransport()}
	res.timeout = time.Second * 30
	res.backoff = newSimpleBackoff
	return res, nil
}

// TriggerSegment asks the ASR service to transcribe one stored segment
func (sp *Client) TriggerSegment(ctx context.Context, recordingID string, index int, storagePath string) error {
	inp := triggerRequest{RecordingID: recordingID, SegmentIndex: index,
		AudioPath: storagePath, ResultURL: sp.callbackURL}
	b, err := json.Marshal(inp)
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

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
