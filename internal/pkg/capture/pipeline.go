package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// DefaultSegmentDuration is the wall-clock slice length for segmented capture
const DefaultSegmentDuration = 3 * time.Minute

// DefaultMimeType marks raw 16kHz mono s16le payloads
const DefaultMimeType = "audio/l16;rate=16000"

const secondaryGain = 0.8

// ErrDeadStream indicates the primary source ended while capture was paused
var ErrDeadStream = errors.New("primary stream ended")

// Dialer acquires a live audio stream for a capability ref.
// The stream delivers s16le 16kHz mono PCM
type Dialer interface {
	DialSource(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Segment is one bounded slice of mixed audio
type Segment struct {
	Index     int
	Payload   []byte
	MimeType  string
	SizeBytes int64
}

// StartRequest configures one capture run
type StartRequest struct {
	PrimaryRef      string
	SecondaryRef    string
	EnableSecondary bool
	SegmentDuration time.Duration
}

// StartResult reports what was actually acquired
type StartResult struct {
	SecondaryEnabled bool
}

type reqKind int

const (
	reqStart reqKind = iota + 1
	reqPause
	reqResume
	reqStop
)

type request struct {
	kind  reqKind
	start StartRequest
	resp  chan response
}

type response struct {
	start      StartResult
	finalIndex int
	err        error
}

// Process runs capture and mixing in a dedicated goroutine.
// All control communication is request/response over channels,
// no memory is shared with the caller
type Process struct {
	dialer Dialer
	mime   string

	reqCh chan request
	segCh chan Segment
}

// NewProcess creates a capture process. Call Run to make it serve requests
func NewProcess(dialer Dialer) *Process {
	return &Process{dialer: dialer, mime: DefaultMimeType,
		reqCh: make(chan request), segCh: make(chan Segment, 4)}
}

// Segments returns the one-way segment emission channel
func (p *Process) Segments() <-chan Segment {
	return p.segCh
}

// Run serves control requests until ctx is done.
// Active capture is torn down best-effort on exit
func (p *Process) Run(ctx context.Context) {
	goapp.Log.Info().Msg("capture process started")
	var act *capturing
	tick := make(<-chan time.Time)
	for {
		select {
		case <-ctx.Done():
			if act != nil {
				act.release()
			}
			goapp.Log.Info().Msg("capture process exit")
			return
		case <-tick:
			if act != nil && !act.paused {
				p.emit(ctx, act.slice())
			}
		case req := <-p.reqCh:
			var resp response
			switch req.kind {
			case reqStart:
				if act != nil {
					resp.err = fmt.Errorf("already capturing")
					break
				}
				nc, res, err := p.startCapture(ctx, req.start)
				if err != nil {
					resp.err = err
					break
				}
				act, resp.start = nc, res
				tick = act.ticker.C
			case reqPause:
				if act == nil {
					resp.err = fmt.Errorf("no active capture")
					break
				}
				act.setPaused(true)
			case reqResume:
				if act == nil {
					resp.err = fmt.Errorf("no active capture")
					break
				}
				if act.primaryBuf.isEnded() {
					resp.err = ErrDeadStream
					break
				}
				act.setPaused(false)
			case reqStop:
				if act == nil {
					resp.err = fmt.Errorf("no active capture")
					resp.finalIndex = -1
					break
				}
				if s, ok := act.finalSlice(); ok {
					p.emit(ctx, s)
				}
				resp.finalIndex = act.nextIndex - 1
				act.release()
				act, tick = nil, make(<-chan time.Time)
			}
			req.resp <- resp
		}
	}
}

// Start acquires sources and begins emitting segments.
// Primary source failure is fatal, secondary failure degrades to primary-only capture
func (p *Process) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	resp, err := p.call(ctx, request{kind: reqStart, start: req})
	return resp.start, err
}

// Pause suspends audio accumulation. Valid only while capturing
func (p *Process) Pause(ctx context.Context) error {
	_, err := p.call(ctx, request{kind: reqPause})
	return err
}

// Resume continues accumulation, fails with ErrDeadStream if the primary source has ended
func (p *Process) Resume(ctx context.Context) error {
	_, err := p.call(ctx, request{kind: reqResume})
	return err
}

// Stop flushes the partial tail as the final segment, releases sources
// and returns the last emitted index, -1 when nothing was emitted
func (p *Process) Stop(ctx context.Context) (int, error) {
	resp, err := p.call(ctx, request{kind: reqStop})
	return resp.finalIndex, err
}

func (p *Process) call(ctx context.Context, req request) (response, error) {
	req.resp = make(chan response, 1)
	select {
	case p.reqCh <- req:
	case <-ctx.Done():
		return response{}, fmt.Errorf("capture process unavailable: %w", ctx.Err())
	}
	select {
	case resp := <-req.resp:
		return resp, resp.err
	case <-ctx.Done():
		return response{}, fmt.Errorf("capture process unavailable: %w", ctx.Err())
	}
}

// emit pushes a segment, one-way. Blocks rather than drops if the consumer stalls
func (p *Process) emit(ctx context.Context, s Segment) {
	select {
	case p.segCh <- s:
	case <-ctx.Done():
		goapp.Log.Warn().Int("index", s.Index).Msg("segment not consumed, process closing")
	}
}

func (p *Process) startCapture(ctx context.Context, req StartRequest) (*capturing, StartResult, error) {
	dur := req.SegmentDuration
	if dur <= 0 {
		dur = DefaultSegmentDuration
	}
	primary, err := p.dialer.DialSource(ctx, req.PrimaryRef)
	if err != nil {
		return nil, StartResult{}, fmt.Errorf("can't acquire primary source: %w", err)
	}
	res := StartResult{}
	var secondary io.ReadCloser
	if req.EnableSecondary {
		secondary, err = p.dialer.DialSource(ctx, req.SecondaryRef)
		if err != nil {
			goapp.Log.Warn().Err(err).Msg("secondary source unavailable, continue with primary only")
		} else {
			res.SecondaryEnabled = true
		}
	}
	act := &capturing{primary: primary, secondary: secondary, mime: p.mime,
		primaryBuf: newSourceBuffer(), secondaryBuf: newSourceBuffer(),
		ticker: time.NewTicker(dur)}
	go readLoop(primary, act.primaryBuf)
	if secondary != nil {
		go readLoop(secondary, act.secondaryBuf)
	}
	return act, res, nil
}

// capturing holds the state of one active run, owned by the process loop
type capturing struct {
	primary, secondary io.ReadCloser
	primaryBuf         *sourceBuffer
	secondaryBuf       *sourceBuffer
	ticker             *time.Ticker
	mime               string
	paused             bool
	nextIndex          int
}

// setPaused toggles accumulation, audio arriving while paused is not recorded
func (c *capturing) setPaused(v bool) {
	c.paused = v
	c.primaryBuf.setPaused(v)
	c.secondaryBuf.setPaused(v)
}

func (c *capturing) slice() Segment {
	mixed := mix(c.primaryBuf.take(), c.secondaryBuf.take(), secondaryGain)
	s := Segment{Index: c.nextIndex, Payload: mixed, MimeType: c.mime, SizeBytes: int64(len(mixed))}
	c.nextIndex++
	return s
}

func (c *capturing) finalSlice() (Segment, bool) {
	mixed := mix(c.primaryBuf.take(), c.secondaryBuf.take(), secondaryGain)
	if len(mixed) == 0 {
		return Segment{}, false
	}
	s := Segment{Index: c.nextIndex, Payload: mixed, MimeType: c.mime, SizeBytes: int64(len(mixed))}
	c.nextIndex++
	return s, true
}

// release closes sources and the slicing timer, best-effort
func (c *capturing) release() {
	c.ticker.Stop()
	if err := c.primary.Close(); err != nil {
		goapp.Log.Warn().Err(err).Msg("primary close error")
	}
	if c.secondary != nil {
		if err := c.secondary.Close(); err != nil {
			goapp.Log.Warn().Err(err).Msg("secondary close error")
		}
	}
}

// sourceBuffer accumulates PCM read from one stream
type sourceBuffer struct {
	lock   sync.Mutex
	data   []byte
	ended  bool
	paused bool
}

func newSourceBuffer() *sourceBuffer {
	return &sourceBuffer{}
}

func (b *sourceBuffer) append(d []byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.paused {
		return
	}
	b.data = append(b.data, d...)
}

func (b *sourceBuffer) setPaused(v bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.paused = v
}

func (b *sourceBuffer) take() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	res := b.data
	b.data = nil
	return res
}

func (b *sourceBuffer) markEnded() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.ended = true
}

func (b *sourceBuffer) isEnded() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.ended
}

func readLoop(r io.Reader, buf *sourceBuffer) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.append(chunk[:n])
		}
		if err != nil {
			if err != io.EOF {
				goapp.Log.Warn().Err(err).Msg("source read error")
			}
			buf.markEnded()
			return
		}
	}
}
