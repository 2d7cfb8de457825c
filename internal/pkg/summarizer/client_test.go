package summarizer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meowmeet/recpipe/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestServer(t *testing.T, code int) (*Client, *[]string) {
	t.Helper()
	bodies := make([]string, 0)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		rw.WriteHeader(code)
	}))
	api := Client{}
	api.httpclient = server.Client()
	api.triggerURL, _ = url.JoinPath(server.URL, "summaries")
	api.timeout = time.Second
	api.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &api, &bodies
}

func TestNewClient_Fail(t *testing.T) {
	_, err := NewClient("", "")
	assert.NotNil(t, err)
}

func TestTrigger(t *testing.T) {
	client, bodies := initTestServer(t, 200)

	err := client.Trigger(test.Ctx(t), "rec-1")
	require.Nil(t, err)
	require.Equal(t, 1, len(*bodies))
	var got triggerRequest
	require.Nil(t, json.Unmarshal([]byte((*bodies)[0]), &got))
	assert.Equal(t, "rec-1", got.RecordingID)
}

func TestTrigger_Fail(t *testing.T) {
	client, _ := initTestServer(t, 500)

	err := client.Trigger(test.Ctx(t), "rec-1")
	assert.NotNil(t, err)
}
