package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FFmpeg invokes the ffmpeg binary on the host PATH. Output is an H.264/AAC
// mp4 with the moov atom up front so playback can start before the file
// finishes downloading.
type FFmpeg struct {
	Path         string
	Preset       string
	AudioBitrate string

	// Timeout bounds a single encode; zero means no deadline.
	Timeout time.Duration
}

func NewFFmpeg(path, preset, audioBitrate string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{Path: path, Preset: preset, AudioBitrate: audioBitrate, Timeout: timeout}
}

func (f *FFmpeg) Encode(ctx context.Context, inputPath string, targetHeight int) (string, error) {
	profile, err := ProfileFor(targetHeight)
	if err != nil {
		return "", err
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	outputPath := filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("%dp.mp4", targetHeight))
	cmd := exec.CommandContext(ctx, f.Path, buildArgs(inputPath, outputPath, profile, f.Preset, f.AudioBitrate)...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &EncodeError{Height: targetHeight, Stderr: stderrTail(stderr.String()), Err: err}
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return "", &EncodeError{Height: targetHeight, Err: fmt.Errorf("output file missing: %w", err)}
	}
	if stat.Size() == 0 {
		return "", &EncodeError{Height: targetHeight, Err: errors.New("output file is empty")}
	}
	return outputPath, nil
}

func buildArgs(inputPath, outputPath string, p Profile, preset, audioBitrate string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", preset,
		"-b:v", p.Bitrate,
		"-maxrate", p.MaxRate,
		"-bufsize", p.BufSize,
		// -2 keeps the aspect ratio and forces even dimensions.
		"-vf", fmt.Sprintf("scale=-2:%d", p.Height),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		outputPath,
	}
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
