package database

import (
	"github.com/mdouchement/chunkstore/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool

		ManifestInteraction
	}

	// A ManifestInteraction defines all the methods used to interact with a manifest record.
	ManifestInteraction interface {
		// CreateManifest persists a new manifest in a single transaction and returns its ID.
		// An ID is generated when the manifest has none. It fails if the ID is already used.
		CreateManifest(m *model.Manifest) (string, error)
		FindManifest(id string) (*model.Manifest, error)
		// ListManifests returns all the manifests ordered by creation date.
		ListManifests() ([]*model.Manifest, error)
	}
)
