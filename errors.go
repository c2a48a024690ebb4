package rstab

import "fmt"

// Sentinel error kinds for the pipeline. Each is wrapped with context
// via fmt.Errorf("...: %w", err) at the call site.
var (
	// ErrUnexpectedEOF is returned by any reader that runs out of bytes
	// mid-read. Fatal at whatever stage produced it.
	ErrUnexpectedEOF = fmt.Errorf("unexpected end of file")

	// ErrBadMagic is returned when a container's magic bytes don't match.
	ErrBadMagic = fmt.Errorf("bad magic")

	// ErrUnsupportedCompression is returned when a PSARC header declares a
	// compression tag other than zlib.
	ErrUnsupportedCompression = fmt.Errorf("unsupported compression")

	// ErrInvalidManifest marks a manifest entry that failed to parse.
	// Non-fatal: the caller should warn and continue with other entries.
	ErrInvalidManifest = fmt.Errorf("invalid manifest")

	// ErrMissingSngAsset marks an arrangement whose .sng asset could not
	// be located in the archive. Non-fatal: skip the arrangement.
	ErrMissingSngAsset = fmt.Errorf("missing sng asset")

	// ErrArrangementDecode marks a failure while building a Score from an
	// arrangement's SNG data. Non-fatal: skip the arrangement.
	ErrArrangementDecode = fmt.Errorf("arrangement decode error")

	// ErrNoArrangements is returned when the pipeline produced zero
	// playable tracks. Fatal.
	ErrNoArrangements = fmt.Errorf("no manifest data found")
)
