package codec

import (
	"github.com/klauspost/compress/zstd"
)

// zstdCodec wraps a reusable zstd encoder/decoder pair. Reusing them across
// calls avoids the dictionary-table allocation a fresh zstd.NewWriter would
// otherwise pay on every damage region, the same "build once, reuse many
// times" shape the teacher's reusable scratch buffers follow in wire.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dst), nil
}

func (c *zstdCodec) Decompress(dst, src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, dst)
}

func (c *zstdCodec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}
