package pagestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm of a CompressedStore.
type Compression uint8

const (
	// CompressionNone stores the framed content raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD Compression = 2
)

// ParseCompression maps a name ("none", "lz4", "zstd") to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("pagestore: unknown compression %q", name)
	}
}

// ErrCorruptFrame is returned when a stored frame fails validation.
var ErrCorruptFrame = errors.New("pagestore: corrupt frame")

// Frame layout: [algo u8][pad 3][raw size u32][stored size u32][crc32 of raw u32][payload].
const frameHeaderSize = 16

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

// CompressedStore compresses blob content and verifies a CRC32 on read.
// Blobs are self-describing, so the algorithm can change between writes.
type CompressedStore struct {
	inner Store
	algo  Compression
}

// NewCompressedStore wraps inner with the given algorithm.
func NewCompressedStore(inner Store, algo Compression) *CompressedStore {
	return &CompressedStore{inner: inner, algo: algo}
}

// Get implements Store.
func (s *CompressedStore) Get(ctx context.Context, name string) ([]byte, error) {
	frame, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := decodeFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}

// Put implements Store.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	frame, err := encodeFrame(data, s.algo)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, name, frame)
}

// Delete implements Store.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List implements Store.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func encodeFrame(data []byte, algo Compression) ([]byte, error) {
	payload := data
	switch algo {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		payload = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	// Store raw if compression doesn't help (ratio > 0.9).
	if algo != CompressionNone && (len(payload) == 0 || float64(len(payload)) > float64(len(data))*0.9) {
		algo, payload = CompressionNone, data
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = byte(algo)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[8:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[12:], crc32.ChecksumIEEE(data))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

func decodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptFrame, len(frame))
	}
	algo := Compression(frame[0])
	rawSize := binary.LittleEndian.Uint32(frame[4:])
	storedSize := binary.LittleEndian.Uint32(frame[8:])
	sum := binary.LittleEndian.Uint32(frame[12:])

	if uint32(len(frame)-frameHeaderSize) != storedSize {
		return nil, fmt.Errorf("%w: payload size %d, header says %d", ErrCorruptFrame, len(frame)-frameHeaderSize, storedSize)
	}
	payload := frame[frameHeaderSize:]

	var data []byte
	switch algo {
	case CompressionNone:
		data = payload
	case CompressionLZ4:
		data = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		data = data[:n]
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		data = out
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorruptFrame, algo)
	}

	if uint32(len(data)) != rawSize {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorruptFrame, len(data), rawSize)
	}
	if crc32.ChecksumIEEE(data) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptFrame)
	}
	return data, nil
}
