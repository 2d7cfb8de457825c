package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/airenas/go-app/pkg/goapp"
)

// FFmpegDialer acquires audio sources by spawning ffmpeg
// decoding the device/URL given by ref into s16le 16kHz mono PCM on stdout
type FFmpegDialer struct {
	// InputFormat is passed as ffmpeg -f value, e.g. pulse, avfoundation
	InputFormat string
}

// DialSource implements Dialer
func (d *FFmpegDialer) DialSource(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, fmt.Errorf("no source ref")
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.InputFormat != "" {
		args = append(args, "-f", d.InputFormat)
	}
	args = append(args, "-i", ref, "-f", "s16le", "-ar", "16000", "-ac", "1", "pipe:1")
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("can't open ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("can't start ffmpeg for '%s': %w", ref, err)
	}
	goapp.Log.Info().Str("ref", ref).Int("pid", cmd.Process.Pid).Msg("source acquired")
	return &ffmpegStream{out: out, cmd: cmd}, nil
}

type ffmpegStream struct {
	out io.ReadCloser
	cmd *exec.Cmd
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

// Close stops the ffmpeg process. Teardown errors are reported
// but the process is always reaped
func (s *ffmpegStream) Close() error {
	_ = s.out.Close()
	if err := s.cmd.Process.Kill(); err != nil {
		goapp.Log.Warn().Err(err).Msg("ffmpeg kill error")
	}
	return s.cmd.Wait()
}
