package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the disk cache stores blocks.
type Compression uint8

const (
	// CompressionNone stores blocks verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD Compression = 2
)

// ErrBadBlock is returned when a stored block cannot be decoded.
var ErrBadBlock = errors.New("cache: malformed block")

// ParseCompression maps "none", "lz4" and "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("cache: unknown compression %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}

	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}

	dec, _ := zstd.NewReader(nil)

	return dec
}

// Block layout: [Codec u8][UncompressedSize u32][CompressedSize u32][Data...]
// CompressedSize 0 means Data is stored verbatim.
const blockHeaderSize = 9

func encodeBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))

		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}

		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	// Store verbatim when compression does not pay off.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		c, compressed = CompressionNone, nil
	}

	payload := data
	if compressed != nil {
		payload = compressed
	}

	out := make([]byte, blockHeaderSize+len(payload))
	out[0] = byte(c)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], payload)

	return out, nil
}

func decodeBlock(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrBadBlock)
	}

	codec := Compression(data[0])
	rawSize := binary.LittleEndian.Uint32(data[1:])
	compSize := binary.LittleEndian.Uint32(data[5:])
	body := data[blockHeaderSize:]

	if compSize == 0 {
		if uint32(len(body)) < rawSize {
			return nil, fmt.Errorf("%w: truncated body", ErrBadBlock)
		}

		return body[:rawSize], nil
	}

	if uint32(len(body)) < compSize {
		return nil, fmt.Errorf("%w: truncated body", ErrBadBlock)
	}

	body = body[:compSize]
	out := make([]byte, rawSize)

	switch codec {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}

		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrBadBlock)
		}

		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, err
		}

		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrBadBlock)
		}

		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrBadBlock, codec)
	}
}
