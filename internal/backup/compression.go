package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType identifies a compression algorithm
type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeZstd CompressionType = "ZSTD"
	CompressionTypeLZ4  CompressionType = "LZ4"
)

// Extension returns the filename extension for artifacts of this type
func (ct CompressionType) Extension() string {
	switch ct {
	case CompressionTypeGzip:
		return ".gz"
	case CompressionTypeZstd:
		return ".zst"
	case CompressionTypeLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// CompressionTypeForPath infers the compression type from a file path
func CompressionTypeForPath(path string) CompressionType {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return CompressionTypeGzip
	case strings.HasSuffix(path, ".zst"):
		return CompressionTypeZstd
	case strings.HasSuffix(path, ".lz4"):
		return CompressionTypeLZ4
	default:
		return CompressionTypeNone
	}
}

// Compressor defines byte-level compression operations
type Compressor interface {
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() CompressionType
}

// CompressionManager dispatches to the registered compressors
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a compression manager with all supported algorithms
func NewCompressionManager() *CompressionManager {
	return &CompressionManager{
		compressors: map[CompressionType]Compressor{
			CompressionTypeGzip: &gzipCompressor{},
			CompressionTypeZstd: &zstdCompressor{},
			CompressionTypeLZ4:  &lz4Compressor{},
		},
	}
}

// Compress compresses data using the specified algorithm and level
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, error) {
	if algorithm == CompressionTypeNone {
		return data, nil
	}
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor.Compress(data, level)
}

// Decompress decompresses data using the specified algorithm
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone {
		return data, nil
	}
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor.Decompress(data)
}

// CompressFile compresses src into a sibling file with the algorithm's
// extension and returns the compressed path and size
func (cm *CompressionManager) CompressFile(src string, algorithm CompressionType, level int) (string, int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", 0, NewToolError("failed to read artifact for compression", err)
	}

	compressed, err := cm.Compress(data, algorithm, level)
	if err != nil {
		return "", 0, err
	}

	dst := src + algorithm.Extension()
	if err := os.WriteFile(dst, compressed, 0o600); err != nil {
		return "", 0, NewToolError("failed to write compressed artifact", err)
	}
	return dst, int64(len(compressed)), nil
}

// DecompressFile decompresses src (algorithm inferred from the extension) into
// a file with the extension stripped and returns the decompressed path. A path
// without a recognized extension is returned unchanged.
func (cm *CompressionManager) DecompressFile(src string) (string, error) {
	algorithm := CompressionTypeForPath(src)
	if algorithm == CompressionTypeNone {
		return src, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", NewToolError("failed to read compressed artifact", err)
	}

	decompressed, err := cm.Decompress(data, algorithm)
	if err != nil {
		return "", err
	}

	dst := strings.TrimSuffix(src, algorithm.Extension())
	if err := os.WriteFile(dst, decompressed, 0o600); err != nil {
		return "", NewToolError("failed to write decompressed artifact", err)
	}
	return dst, nil
}

// gzipCompressor implements gzip compression
type gzipCompressor struct{}

func (gc *gzipCompressor) Compress(data []byte, level int) ([]byte, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, NewToolError("failed to create gzip writer", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewToolError("failed to write gzip data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewToolError("failed to close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewToolError("failed to create gzip reader", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewToolError("failed to decompress gzip data", err)
	}
	return decompressed, nil
}

func (gc *gzipCompressor) Algorithm() CompressionType {
	return CompressionTypeGzip
}

// zstdCompressor implements Zstandard compression
type zstdCompressor struct{}

func (zc *zstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	encoderLevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, NewToolError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewToolError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, NewToolError("failed to decompress zstd data", err)
	}
	return decompressed, nil
}

func (zc *zstdCompressor) Algorithm() CompressionType {
	return CompressionTypeZstd
}

// lz4Compressor implements LZ4 compression
type lz4Compressor struct{}

func (lc *lz4Compressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, NewToolError("failed to set lz4 compression level", err)
		}
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewToolError("failed to write lz4 data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewToolError("failed to close lz4 writer", err)
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewToolError("failed to decompress lz4 data", err)
	}
	return decompressed, nil
}

func (lc *lz4Compressor) Algorithm() CompressionType {
	return CompressionTypeLZ4
}
