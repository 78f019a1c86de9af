package engine

import "errors"

var (
	// ErrNoCameras means the configuration lists no camera sources. Start
	// does not wait for any camera to open, so an unreachable source does
	// not produce this error.
	ErrNoCameras = errors.New("engine: no camera sources")

	// ErrKeySetup means vault key load or generation failed at startup.
	ErrKeySetup = errors.New("engine: key setup failed")

	// ErrEvidenceNotFound means the requested evidence file does not exist
	// under the evidence root.
	ErrEvidenceNotFound = errors.New("engine: evidence file not found")
)
