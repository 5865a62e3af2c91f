package transcode

import (
	"context"
	"fmt"
)

// Encoder produces one rendition at one target height from a local input
// file and returns the path of the output file. Implementations are
// blocking; the worker never runs two encodes of the same job at once.
type Encoder interface {
	Encode(ctx context.Context, inputPath string, targetHeight int) (string, error)
}

// Profile is the fixed encoding ladder entry for one target height.
type Profile struct {
	Height  int
	Bitrate string
	MaxRate string
	BufSize string
}

var ladder = map[int]Profile{
	720:  {Height: 720, Bitrate: "3500k", MaxRate: "4500k", BufSize: "9000k"},
	1080: {Height: 1080, Bitrate: "6000k", MaxRate: "8000k", BufSize: "16000k"},
	2160: {Height: 2160, Bitrate: "16000k", MaxRate: "20000k", BufSize: "40000k"},
}

// ProfileFor returns the ladder entry for a target height. Heights outside
// the ladder are a programming error surfaced as a plain error.
func ProfileFor(height int) (Profile, error) {
	p, ok := ladder[height]
	if !ok {
		return Profile{}, fmt.Errorf("no encoding profile for height %d", height)
	}
	return p, nil
}

// EncodeError is any failure of the external encoder: non-zero exit,
// timeout, or a missing/empty output file.
type EncodeError struct {
	Height int
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("encode %dp: %v", e.Height, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }
