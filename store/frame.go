package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"gitlab.com/tinyland/lab/hostpulse/sample"
)

// Frame format flags. The flag word is persisted next to every frame
// and pins its encoding, so the on-disk format can evolve without
// breaking old shards.
const (
	flagCompressed uint32 = 1 << 0 // payload is zstd compressed
	flagCBOR       uint32 = 1 << 1 // payload decodes as CBOR

	knownFlags = flagCompressed | flagCBOR
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	// EncodeAll/DecodeAll on shared codecs; both are safe for
	// concurrent use.
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
}

// encodeFrame serializes a Sample into frame bytes plus the flag word
// describing the encoding.
func encodeFrame(s *sample.Sample, compress bool) ([]byte, uint32, error) {
	payload, err := cbor.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("store: encode frame: %w", err)
	}
	flags := flagCBOR
	if compress {
		payload = zstdEncoder.EncodeAll(payload, nil)
		flags |= flagCompressed
	}
	return payload, flags, nil
}

// decodeFrame reverses encodeFrame. Unknown flag bits fail with
// ErrUnknownFormat; undecodable bytes fail with ErrCorruptFrame. It
// never panics on malformed input: both the zstd and CBOR decoders
// bound their reads to the payload.
func decodeFrame(payload []byte, flags uint32) (*sample.Sample, error) {
	if flags&^knownFlags != 0 {
		return nil, fmt.Errorf("%w: flags %#x", ErrUnknownFormat, flags)
	}
	if flags&flagCBOR == 0 {
		return nil, fmt.Errorf("%w: flags %#x name no known serialization", ErrUnknownFormat, flags)
	}
	if flags&flagCompressed != 0 {
		var err error
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptFrame, err)
		}
	}
	var s sample.Sample
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: cbor: %v", ErrCorruptFrame, err)
	}
	return &s, nil
}
