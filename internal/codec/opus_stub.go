//go:build !(opus && cgo)

package codec

import "github.com/dkeye/voicemedia/internal/core"

const opusAvailable = false

func newOpusEncoder(_, _ int) (core.AudioEncoder, error) { return nil, core.ErrUnavailable }
func newOpusDecoder(_ int) (core.AudioDecoder, error)    { return nil, core.ErrUnavailable }
