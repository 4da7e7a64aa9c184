package ingestion

import "errors"

// Terminal error kinds for an ingestion run. Handlers match on these with
// errors.Is to pick the response status; everything else is treated as an
// internal failure.
var (
	// ErrStructureInvalid: archive layout wrong or a referenced image is
	// missing from the archive.
	ErrStructureInvalid = errors.New("archive structure invalid")

	// ErrMetadataInvalid: the properties table is malformed.
	ErrMetadataInvalid = errors.New("metadata table invalid")

	// ErrSceneGraphInvalid: the embedded scene-graph script is unreadable
	// or declares no scenes.
	ErrSceneGraphInvalid = errors.New("scene graph invalid")

	// ErrUploadFailed: the external storage sync utility failed after
	// retries.
	ErrUploadFailed = errors.New("asset upload failed")

	// ErrPersistenceFailed: a database write failed; the ingestion
	// transaction was rolled back.
	ErrPersistenceFailed = errors.New("persistence failed")
)
