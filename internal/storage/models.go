package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Artifact is a row of the artifacts table. StructuredJSON holds the
// structured output exactly as it was serialized at creation.
type Artifact struct {
	ID             string
	Brand          string
	Mode           string
	RawInput       string
	StructuredJSON string
	CreatedAt      time.Time
}

// DownloadToken is a row of the download_tokens table. ArtifactID is not a
// foreign key; the referenced artifact is looked up separately.
type DownloadToken struct {
	Token      string
	ArtifactID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
