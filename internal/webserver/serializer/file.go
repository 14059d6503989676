package serializer

import (
	"strings"

	"github.com/mdouchement/chunkstore/internal/model"
)

// TextFiles returns the text serialized form of the given manifests, one filename per line.
func TextFiles(manifests []*model.Manifest) string {
	sl := make([]string, 0, len(manifests))

	for _, manifest := range manifests {
		sl = append(sl, manifest.Filename)
	}

	return strings.Join(sl, "\n")
}

// Files returns the listing form of the given manifests.
func Files(manifests []*model.Manifest) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(manifests))

	for _, manifest := range manifests {
		sl = append(sl, map[string]interface{}{
			"id":           manifest.ID,
			"filename":     manifest.Filename,
			"content_type": manifest.ContentType,
			"length":       manifest.Length,
			"upload_date":  manifest.CreatedAt,
		})
	}

	return sl
}

// File returns the serialized form of the given manifest.
func File(manifest *model.Manifest) map[string]interface{} {
	return map[string]interface{}{
		"id":           manifest.ID,
		"filename":     manifest.Filename,
		"content_type": manifest.ContentType,
		"length":       manifest.Length,
		"chunk_size":   manifest.ChunkSize,
		"chunk_count":  manifest.ChunkCount,
		"checksum":     manifest.Checksum,
		"upload_date":  manifest.CreatedAt,
	}
}

// Text returns the serialized form of the text extracted from a file.
func Text(manifest *model.Manifest, text string) map[string]interface{} {
	return map[string]interface{}{
		"id":       manifest.ID,
		"filename": manifest.Filename,
		"text":     text,
	}
}
