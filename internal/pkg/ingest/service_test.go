package ingest

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/registrar"
	"github.com/meowmeet/recpipe/internal/pkg/test"
	"github.com/meowmeet/recpipe/internal/pkg/test/mocks"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
)

var (
	regMock   *mocks.Registrar
	dbMock    *mocks.DB
	filerMock *mocks.Filer
	tData     *Data
	tEcho     *echo.Echo
)

func initTest(t *testing.T) {
	regMock = &mocks.Registrar{}
	dbMock = &mocks.DB{}
	filerMock = &mocks.Filer{}
	tData = &Data{}
	tData.Registrar = regMock
	tData.DB = dbMock
	tData.Reader = filerMock
	tEcho = initRoutes(tData)
	dbMock.On("Live", mock.Anything).Return(nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/recordings", nil)
	test.Code(t, tEcho, req, 405)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, 200)
}

func Test_Live_Fail(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("Live", mock.Anything).Return(assert.AnError)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, http.StatusServiceUnavailable)
}

func Test_Create(t *testing.T) {
	initTest(t)
	regMock.On("CreateRecording", mock.Anything, mock.Anything, mock.Anything).Return("id1", nil)
	req := newJSONRequest(t, http.MethodPost, "/recordings", `{"email":"o@o.lt","title":"meet"}`)
	req.Header.Set(api.RequestIDHeader, "rID")
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[result](t, resp.Result())
	assert.Equal(t, "id1", res.ID)
	inp := regMock.Calls[0].Arguments[1].(*api.CreateRecordingInput)
	assert.Equal(t, "o@o.lt", inp.Email)
	assert.Equal(t, "meet", inp.Title)
	assert.Equal(t, "rID", regMock.Calls[0].Arguments[2])
}

func Test_Create_Fail(t *testing.T) {
	initTest(t)
	regMock.On("CreateRecording", mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError)
	req := newJSONRequest(t, http.MethodPost, "/recordings", `{}`)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_SegmentArrival(t *testing.T) {
	initTest(t)
	regMock.On("RecordSegmentArrival", mock.Anything, "id1", 2, mock.Anything).Return(nil)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/segments/2",
		`{"storagePath":"s1/id1/segment_2.pcm","sizeBytes":100}`)
	test.Code(t, tEcho, req, http.StatusOK)
	inp := regMock.Calls[0].Arguments[3].(*api.SegmentArrivalInput)
	assert.Equal(t, "s1/id1/segment_2.pcm", inp.StoragePath)
	assert.Equal(t, int64(100), inp.SizeBytes)
}

func Test_SegmentArrival_WrongInput(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "no storage path", path: "/recordings/id1/segments/2", body: `{"sizeBytes":100}`},
		{name: "bad index", path: "/recordings/id1/segments/oo", body: `{"storagePath":"p"}`},
		{name: "negative index", path: "/recordings/id1/segments/-1", body: `{"storagePath":"p"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := newJSONRequest(t, http.MethodPost, tt.path, tt.body)
			test.Code(t, tEcho, req, http.StatusBadRequest)
		})
	}
}

func Test_SegmentArrival_NoRecording(t *testing.T) {
	initTest(t)
	regMock.On("RecordSegmentArrival", mock.Anything, "id1", 2, mock.Anything).Return(registrar.ErrNotFound)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/segments/2", `{"storagePath":"p"}`)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Complete(t *testing.T) {
	initTest(t)
	regMock.On("CompleteRecording", mock.Anything, "id1", mock.Anything).Return(nil)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/complete", `{"durationSeconds":120}`)
	test.Code(t, tEcho, req, http.StatusOK)
	inp := regMock.Calls[0].Arguments[2].(*api.CompleteRecordingInput)
	assert.Equal(t, int32(120), inp.DurationSeconds)
}

func Test_Complete_NoRecording(t *testing.T) {
	initTest(t)
	regMock.On("CompleteRecording", mock.Anything, "id1", mock.Anything).Return(registrar.ErrNotFound)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/complete", `{}`)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Fail(t *testing.T) {
	initTest(t)
	regMock.On("FailRecording", mock.Anything, "id1", mock.Anything).Return(nil)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/fail", `{"reason":"mic died"}`)
	test.Code(t, tEcho, req, http.StatusOK)
	inp := regMock.Calls[0].Arguments[2].(*api.FailRecordingInput)
	assert.Equal(t, "mic died", inp.Reason)
}

func Test_SegmentResult(t *testing.T) {
	initTest(t)
	regMock.On("SaveSegmentResult", mock.Anything, "id1", 0, mock.Anything).Return(nil)
	req := newJSONRequest(t, http.MethodPost, "/recordings/id1/segments/0/result",
		`{"transcript":"olia","wordCount":1,"speakers":[{"id":"1","name":"Jonas"}]}`)
	test.Code(t, tEcho, req, http.StatusOK)
	inp := regMock.Calls[0].Arguments[3].(*api.SegmentResultInput)
	assert.Equal(t, "olia", inp.Transcript)
	assert.Equal(t, int32(1), inp.WordCount)
	assert.Equal(t, []api.SpeakerData{{ID: "1", Name: "Jonas"}}, inp.Speakers)
}

func Test_Summarized(t *testing.T) {
	initTest(t)
	regMock.On("MarkSummarized", mock.Anything, "id1").Return(nil)
	req := httptest.NewRequest(http.MethodPost, "/recordings/id1/summarized", nil)
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_Summarized_Fail(t *testing.T) {
	initTest(t)
	regMock.On("MarkSummarized", mock.Anything, "id1").Return(assert.AnError)
	req := httptest.NewRequest(http.MethodPost, "/recordings/id1/summarized", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Transcript(t *testing.T) {
	initTest(t)
	dbMock.On("LoadTranscript", mock.Anything, "id1").Return(&persistence.Transcript{RecordingID: "id1",
		Content: "olia", WordCount: 1, Speakers: []persistence.Speaker{{ID: "1", Name: "Jonas"}}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/recordings/id1/transcript", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[transcriptResult](t, resp.Result())
	assert.Equal(t, "id1", res.ID)
	assert.Equal(t, "olia", res.Content)
	assert.Equal(t, int32(1), res.WordCount)
	assert.Equal(t, []persistence.Speaker{{ID: "1", Name: "Jonas"}}, res.Speakers)
}

func Test_Transcript_NoTranscript(t *testing.T) {
	initTest(t)
	dbMock.On("LoadTranscript", mock.Anything, "id1").Return(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/recordings/id1/transcript", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_SegmentAudio(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegments", mock.Anything, "id1").Return([]*persistence.Segment{
		{RecordingID: "id1", Index: 0, StoragePath: utils.ToSQLStr("s1/id1/segment_0.pcm")}}, nil)
	filerMock.On("LoadFile", mock.Anything, "s1/id1/segment_0.pcm").
		Return(&testFileWrap{s: "audio", n: "segment_0.pcm"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/recordings/id1/segments/0/audio", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "audio", test.RStr(t, resp.Body))
	assert.Equal(t, "attachment; filename=segment_0.pcm", resp.Header().Get("Content-Disposition"))
}

func Test_SegmentAudio_NoSegment(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegments", mock.Anything, "id1").Return(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/recordings/id1/segments/0/audio", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_SegmentAudio_NoFile(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegments", mock.Anything, "id1").Return([]*persistence.Segment{
		{RecordingID: "id1", Index: 0, StoragePath: utils.ToSQLStr("s1/id1/segment_0.pcm")}}, nil)
	filerMock.On("LoadFile", mock.Anything, "s1/id1/segment_0.pcm").
		Return(nil, minio.ErrorResponse{StatusCode: http.StatusNotFound})
	req := httptest.NewRequest(http.MethodGet, "/recordings/id1/segments/0/audio", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_validate(t *testing.T) {
	type args struct {
		data *Data
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{data: &Data{Registrar: &mocks.Registrar{}, DB: &mocks.DB{},
			Reader: &mocks.Filer{}}}, wantErr: false},
		{name: "Fail registrar", args: args{data: &Data{DB: &mocks.DB{}, Reader: &mocks.Filer{}}},
			wantErr: true},
		{name: "Fail DB", args: args{data: &Data{Registrar: &mocks.Registrar{}, Reader: &mocks.Filer{}}},
			wantErr: true},
		{name: "Fail reader", args: args{data: &Data{Registrar: &mocks.Registrar{}, DB: &mocks.DB{}}},
			wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newJSONRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

type testFileWrap struct {
	s string
	n string
}

func (fw *testFileWrap) Read(p []byte) (n int, err error) {
	return strings.NewReader(fw.s).Read(p)
}

func (fw *testFileWrap) Seek(offset int64, whence int) (int64, error) {
	return strings.NewReader(fw.s).Seek(offset, whence)
}

func (fw *testFileWrap) Close() error {
	return nil
}

func (fw *testFileWrap) Stat() (fs.FileInfo, error) {
	return &testStatsWrap{size: int64(len(fw.s)), name: fw.n}, nil
}

type testStatsWrap struct {
	size int64
	name string
}

func (sw *testStatsWrap) IsDir() bool        { return false }
func (sw *testStatsWrap) ModTime() time.Time { return time.Now() }
func (sw *testStatsWrap) Mode() fs.FileMode  { return fs.ModeTemporary }
func (sw *testStatsWrap) Name() string       { return sw.name }
func (sw *testStatsWrap) Size() int64        { return sw.size }
func (sw *testStatsWrap) Sys() any           { return nil }
