package service

import (
	"github.com/gofrs/uuid"
	"github.com/mdouchement/chunkstore/internal/database"
	"github.com/mdouchement/chunkstore/internal/model"
)

// A Catalog lists and describes the stored files.
type Catalog struct {
	database database.Client
}

// NewCatalog returns a new Catalog.
func NewCatalog(database database.Client) *Catalog {
	return &Catalog{
		database: database,
	}
}

// List returns the manifests of all the stored files.
func (s *Catalog) List() ([]*model.Manifest, error) {
	manifests, err := s.database.ListManifests()
	if err != nil {
		return nil, fail(ErrStorage, err, "list")
	}
	return manifests, nil
}

// Stat returns the manifest of the given file.
func (s *Catalog) Stat(id string) (*model.Manifest, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return findManifest(s.database, id)
}

// ValidateID checks that id is a canonical UUID as generated by the store.
func ValidateID(id string) error {
	u, err := uuid.FromString(id)
	if err != nil || u.String() != id {
		return fail(ErrInvalidIdentifier, nil, "%q", id)
	}
	return nil
}

func findManifest(db database.Client, id string) (*model.Manifest, error) {
	manifest, err := db.FindManifest(id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fail(ErrNotFound, nil, "%s", id)
		}
		return nil, fail(ErrStorage, err, "manifest %s", id)
	}
	return manifest, nil
}
