// Package archive classifies downloaded package archives and unpacks them.
//
// Classification and unpack dispatch share a single ordered suffix table, so
// a file recognized as an archive is always unpackable and vice versa. The
// table is consulted longest suffix first: ".tar.gz" wins over ".gz".
package archive

import (
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// format binds a filename suffix to the capability used to unpack it.
// Exactly one of extractor and decomp is set: extractor for container
// formats (zip, tar and friends), decomp for plain compressed files.
type format struct {
	suffix    string
	extractor archives.Extraction
	decomp    archives.Compression
}

// formats is the recognition and dispatch table, longest suffix first.
// Wheel and egg bundles are zip containers.
var formats = []format{
	{suffix: ".tar.gz", extractor: archives.CompressedArchive{Compression: archives.Gz{}, Extraction: archives.Tar{}}},
	{suffix: ".tar.bz2", extractor: archives.CompressedArchive{Compression: archives.Bz2{}, Extraction: archives.Tar{}}},
	{suffix: ".tgz", extractor: archives.CompressedArchive{Compression: archives.Gz{}, Extraction: archives.Tar{}}},
	{suffix: ".tbz", extractor: archives.CompressedArchive{Compression: archives.Bz2{}, Extraction: archives.Tar{}}},
	{suffix: ".tar", extractor: archives.Tar{}},
	{suffix: ".zip", extractor: archives.Zip{}},
	{suffix: ".whl", extractor: archives.Zip{}},
	{suffix: ".egg", extractor: archives.Zip{}},
	{suffix: ".gz", decomp: archives.Gz{}},
	{suffix: ".bz2", decomp: archives.Bz2{}},
}

// IsArchive reports whether name carries a recognized archive suffix.
// The match is case-sensitive.
func IsArchive(name string) bool {
	for _, f := range formats {
		if strings.HasSuffix(name, f.suffix) {
			return true
		}
	}
	return false
}

// StripSuffix removes the longest recognized archive suffix from path.
// If no suffix matches, path is returned unchanged.
func StripSuffix(path string) string {
	for _, f := range formats {
		if strings.HasSuffix(path, f.suffix) {
			return strings.TrimSuffix(path, f.suffix)
		}
	}
	return path
}

// formatFor returns the table entry matching path's suffix.
func formatFor(path string) (format, bool) {
	base := filepath.Base(path)
	for _, f := range formats {
		if strings.HasSuffix(base, f.suffix) {
			return f, true
		}
	}
	return format{}, false
}

// Suffixes returns the recognized suffixes in match order.
// Useful for diagnostics and shell completion.
func Suffixes() []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = f.suffix
	}
	return out
}
