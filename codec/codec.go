// Package codec compresses the large, compressible payloads a wlrelay
// tunnel carries: shm pool mirrors and damaged pixel regions. Compression is
// applied per coalesced damage region rather than to the whole wire stream,
// so a single large shm buffer update doesn't force the dispatcher to
// buffer megabytes before the peer can start decoding.
package codec

import "io"

// Codec compresses and decompresses a single block of bytes. Implementations
// are not required to be safe for concurrent use. wlrelay's relay package
// creates one Codec per Session: its local-to-peer loop only calls
// Compress and its peer-to-local loop only calls Decompress.
type Codec interface {
	// Compress appends the compressed form of src to dst and returns the
	// extended slice.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress appends the decompressed form of src to dst and returns
	// the extended slice.
	Decompress(dst, src []byte) ([]byte, error)
	io.Closer
}

// Name identifies a Codec implementation; relay.Config carries it as the
// codec setting. No handshake exchanges it, so both processes of a pair
// are configured with the same Name.
type Name string

const (
	// NameNone performs no compression; Compress and Decompress are both
	// identity copies. Used for already-compressed or tiny payloads where
	// the codec overhead is not worth paying.
	NameNone Name = "none"
	// NameZstd compresses with zstd, tuned for throughput over ratio: most
	// damaged regions are resubmitted many times per second and need to
	// stay ahead of the next frame, not shrink to the smallest byte count.
	NameZstd Name = "zstd"
)

// New constructs the Codec for name. It returns ErrUnknownCodec for any
// other value.
func New(name Name) (Codec, error) {
	switch name {
	case NameNone, "":
		return noneCodec{}, nil
	case NameZstd:
		return newZstdCodec()
	default:
		return nil, ErrUnknownCodec
	}
}
