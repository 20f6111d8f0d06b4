//go:build !(vpx && cgo)

package codec

import "github.com/dkeye/voicemedia/internal/core"

const vpxAvailable = false

func newVP9Encoder(_, _, _, _ int) (core.VideoEncoder, error) { return nil, core.ErrUnavailable }
func newVP9Decoder() (core.VideoDecoder, error)               { return nil, core.ErrUnavailable }
