package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// Decode decodes response body to json type
func Decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var res T
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

// Ctx returns test context with timeout
func Ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cf := context.WithTimeout(context.Background(), time.Second*20)
	t.Cleanup(func() { cf() })
	return ctx
}

// Code serves req through echo and checks the response code
func Code(t *testing.T, tEcho *echo.Echo, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	tResp := httptest.NewRecorder()
	tEcho.ServeHTTP(tResp, req)
	require.Equal(t, code, tResp.Code)
	return tResp
}

// RStr reads all data as string
func RStr(t *testing.T, r io.Reader) string {
	t.Helper()
	var b bytes.Buffer
	_, err := b.ReadFrom(r)
	require.Nil(t, err)
	return b.String()
}
