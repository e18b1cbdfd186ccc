package transcode

import (
	"context"
	"io"
	"os/exec"
	"time"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
)

// ffmpegProcess manages one spawned ffmpeg subprocess's stdin/stdout pipes
// and shutdown sequence. Grounded in the teacher pack's exec.Cmd-based
// media process wrappers: a process map is unnecessary here because each
// TranscodeFilter owns exactly one decode process and one encode process
// for its lifetime, but the start/kill-timeout/Wait shape is the same.
type ffmpegProcess struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	killTimeout time.Duration
}

func startFFmpegProcess(ctx context.Context, op, binPath string, args []string, killTimeout time.Duration) (*ffmpegProcess, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	cmd := exec.CommandContext(ctx, binPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, protoerr.NewEncoderError(op, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, protoerr.NewEncoderError(op, err)
	}
	// Consumed but not inspected: ffmpeg's progress/diagnostic lines are not
	// part of this filter's contract, unlike the teacher's log-parsing
	// watchdog, which has no analogue here (no stream-key/bitrate UI).
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, protoerr.NewEncoderError(op, err)
	}

	return &ffmpegProcess{cmd: cmd, stdin: stdin, stdout: stdout, killTimeout: killTimeout}, nil
}

// Close closes stdin (signaling EOF to ffmpeg) and waits for the process to
// exit, forcibly killing it after killTimeout. Idempotent: a second Close
// observes an already-exited process and returns nil.
func (p *ffmpegProcess) Close() error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	_ = p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(p.killTimeout):
		_ = p.cmd.Process.Kill()
		<-done
		return nil
	}
}
