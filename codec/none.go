package codec

// noneCodec is the identity Codec, selected by NameNone or an empty Name.
type noneCodec struct{}

func (noneCodec) Compress(dst, src []byte) ([]byte, error)   { return append(dst, src...), nil }
func (noneCodec) Decompress(dst, src []byte) ([]byte, error) { return append(dst, src...), nil }
func (noneCodec) Close() error                               { return nil }
