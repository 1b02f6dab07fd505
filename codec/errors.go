package codec

import "errors"

// ErrUnknownCodec reports a codec Name not recognized by New.
var ErrUnknownCodec = errors.New("codec: unknown name")
