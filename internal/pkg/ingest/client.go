package ingest

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

	"github.com/meowmeet/recpipe/internal/pkg/api"
)

// Client is the recorder side HTTP client for the ingest service
type Client struct {
	url        string
	httpclient *http.Client
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates an ingest API client
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("no URL")
	}
	res := &Client{url: url}
	res.httpclient = &http.Client{Transport: newTransport()}
	res.timeout = time.Second * 30
	res.backoff = newSimpleBackoff
	return res, nil
}

// CreateRecording registers a new recording, returns its ID
func (sp *Client) CreateRecording(ctx context.Context, in *api.CreateRecordingInput) (string, error) {
	var res result
	if err := sp.invoke(ctx, sp.url+"/recordings", in, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// RecordSegmentArrival reports one stored segment
func (sp *Client) RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error {
	return sp.invoke(ctx, fmt.Sprintf("%s/recordings/%s/segments/%d", sp.url, recordingID, index), in, nil)
}

// CompleteRecording closes the recording on the server
func (sp *Client) CompleteRecording(ctx context.Context, recordingID string, durationSeconds int32) error {
	return sp.invoke(ctx, fmt.Sprintf("%s/recordings/%s/complete", sp.url, recordingID),
		&api.CompleteRecordingInput{DurationSeconds: durationSeconds}, nil)
}

// FailRecording marks the recording failed on the server
func (sp *Client) FailRecording(ctx context.Context, recordingID, reason string) error {
	return sp.invoke(ctx, fmt.Sprintf("%s/recordings/%s/fail", sp.url, recordingID),
		&api.FailRecordingInput{Reason: reason}, nil)
}

func (sp *Client) invoke(ctx context.Context, url string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("can't marshal input: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx,
		func() (interface{}, bool, error) {
			ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
			defer cancelF()
			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
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
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return nil, false, fmt.Errorf("can't decode response: %w", err)
				}
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
