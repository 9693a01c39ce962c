package archive

import "bytes"

// Format identifies the archive container format detected from magic bytes.
type Format int

const (
	// FormatUnknown could not be classified as tar.gz or zip.
	FormatUnknown Format = iota
	FormatTarGz
	FormatZip
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte{0x50, 0x4b, 0x03, 0x04}
)

// DetectFormat classifies data by its leading magic bytes, never by file
// extension or content heuristics.
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, zipMagic) {
		return FormatZip
	}
	if bytes.HasPrefix(data, gzipMagic) {
		return FormatTarGz
	}
	return FormatUnknown
}
