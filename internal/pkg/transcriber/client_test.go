package transcriber

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meowmeet/recpipe/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	resp string
	URL  string
}

func newTestReq(req *http.Request) testReq {
	b, _ := io.ReadAll(req.Body)
	return testReq{URL: req.URL.String(), resp: string(b)}
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, newTestReq(req))
		resp, f := rData[req.URL.String()]
		if f {
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	api := Client{}
	api.httpclient = server.Client()
	api.triggerURL, _ = url.JoinPath(server.URL, "transcriptions")
	api.callbackURL = "http://ingest:8000/result"
	api.timeout = time.Second
	api.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &api, &resRequest
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://olia:8000/transcriptions", "http://ingest:8000/result")
	assert.Nil(t, err)
	assert.NotNil(t, c)
}

func TestNewClient_Fail(t *testing.T) {
	_, err := NewClient("", "http://ingest:8000/result")
	assert.NotNil(t, err)
}

func TestTriggerSegment(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{"/transcriptions": {code: 200, resp: "{}"}})

	err := client.TriggerSegment(test.Ctx(t), "rec-1", 2, "s/rec-1/segment_2.pcm")
	require.Nil(t, err)
	require.Equal(t, 1, len(*tReq))
	var got triggerRequest
	require.Nil(t, json.Unmarshal([]byte((*tReq)[0].resp), &got))
	assert.Equal(t, "rec-1", got.RecordingID)
	assert.Equal(t, 2, got.SegmentIndex)
	assert.Equal(t, "s/rec-1/segment_2.pcm", got.AudioPath)
	assert.Equal(t, "http://ingest:8000/result", got.ResultURL)
}

func TestTriggerSegment_Fail(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{"/transcriptions": {code: 500, resp: ""}})

	err := client.TriggerSegment(test.Ctx(t), "rec-1", 0, "p")
	assert.NotNil(t, err)
}

func TestTriggerSegment_Retries(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{"/transcriptions": {code: 503, resp: ""}})
	client.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}

	err := client.TriggerSegment(test.Ctx(t), "rec-1", 0, "p")
	assert.NotNil(t, err)
	assert.Equal(t, 3, len(*tReq))
}
