package weights

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the payload compression of a stored tensor. The
// value is written into the bundle, so the constants are format
// constants and must not be renumbered.
type Codec uint8

const (
	// CodecNone stores the raw little-endian float32 bytes.
	CodecNone Codec = 0

	// CodecLZ4 is LZ4 block compression.
	CodecLZ4 Codec = 1

	// CodecZstd is zstd at the default level.
	CodecZstd Codec = 2

	// CodecBG4 transposes the payload in 4-byte groups before LZ4.
	// Weight tensors hold runs of float32 values with similar
	// exponents, so grouping bytes by position within the group makes
	// the high bytes long compressible runs.
	CodecBG4 Codec = 3
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecBG4:
		return "bg4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "bg4":
		return CodecBG4, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// zstd encoder/decoder are stateless under EncodeAll/DecodeAll and
// safe for concurrent use, so one pair serves the package.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("weights: zstd encoder init: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("weights: zstd decoder init: " + err.Error())
	}
}

var errIncompressible = fmt.Errorf("payload is incompressible")

// encode compresses raw with the given codec. CodecNone returns raw
// unchanged. Returns errIncompressible when the output would not be
// smaller than the input.
func encode(c Codec, raw []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return raw, nil
	case CodecLZ4:
		return encodeLZ4(raw)
	case CodecZstd:
		return encodeZstd(raw)
	case CodecBG4:
		return encodeLZ4(bg4Transpose(raw))
	default:
		return nil, fmt.Errorf("unsupported codec: %d", c)
	}
}

// decode reverses encode. rawSize must match the original length
// exactly; a mismatch is a format error at the caller.
func decode(c Codec, payload []byte, rawSize int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(payload) != rawSize {
			return nil, fmt.Errorf("raw payload size %d, want %d", len(payload), rawSize)
		}
		return payload, nil
	case CodecLZ4:
		return decodeLZ4(payload, rawSize)
	case CodecZstd:
		return decodeZstd(payload, rawSize)
	case CodecBG4:
		transposed, err := decodeLZ4(payload, rawSize)
		if err != nil {
			return nil, err
		}
		return bg4Untranspose(transposed), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %d", c)
	}
}

// pickCodec probes raw against every compressing codec and keeps the
// smallest payload. Tensors that do not shrink are stored raw.
func pickCodec(raw []byte) (Codec, []byte) {
	if len(raw) == 0 {
		return CodecNone, raw
	}
	best, bestPayload := CodecNone, raw
	for _, c := range []Codec{CodecLZ4, CodecBG4, CodecZstd} {
		if p, err := encode(c, raw); err == nil && len(p) < len(bestPayload) {
			best, bestPayload = c, p
		}
	}
	return best, bestPayload
}

func encodeLZ4(raw []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	written, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports incompressible input as 0 written bytes.
	if written == 0 || written >= len(raw) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func decodeLZ4(payload []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", read, rawSize)
	}
	return dst, nil
}

func encodeZstd(raw []byte) ([]byte, error) {
	payload := zstdEncoder.EncodeAll(raw, nil)
	if len(payload) >= len(raw) {
		return nil, errIncompressible
	}
	return payload, nil
}

func decodeZstd(payload []byte, rawSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(out), rawSize)
	}
	return out, nil
}

// bg4Transpose groups bytes by their position within each 4-byte
// word: all byte-0s, then all byte-1s, and so on. Trailing bytes of a
// non-aligned input are copied through unchanged.
func bg4Transpose(raw []byte) []byte {
	groups := len(raw) / 4
	out := make([]byte, len(raw))
	for i := 0; i < groups; i++ {
		out[i] = raw[i*4]
		out[groups+i] = raw[i*4+1]
		out[groups*2+i] = raw[i*4+2]
		out[groups*3+i] = raw[i*4+3]
	}
	copy(out[groups*4:], raw[groups*4:])
	return out
}

func bg4Untranspose(raw []byte) []byte {
	groups := len(raw) / 4
	out := make([]byte, len(raw))
	for i := 0; i < groups; i++ {
		out[i*4] = raw[i]
		out[i*4+1] = raw[groups+i]
		out[i*4+2] = raw[groups*2+i]
		out[i*4+3] = raw[groups*3+i]
	}
	copy(out[groups*4:], raw[groups*4:])
	return out
}
