package apply

import (
	"path/filepath"

	"github.com/vitaliisemenov/chainboot/internal/acquire"
	"github.com/vitaliisemenov/chainboot/internal/cache"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// ManifestResolver implements SourceResolver by looking payload and
// container source fields up directly in the parsed manifest.
type ManifestResolver struct {
	manifest *manifest.Manifest
}

// NewManifestResolver returns a SourceResolver backed by m.
func NewManifestResolver(m *manifest.Manifest) *ManifestResolver {
	return &ManifestResolver{manifest: m}
}

// SourceFor returns the acquisition source and verification metadata for
// the payload identified by payloadKey.
func (r *ManifestResolver) SourceFor(payloadKey string) (acquire.Source, cache.PayloadRef, error) {
	idx, ok := r.manifest.PayloadByKey(payloadKey)
	if !ok {
		return acquire.Source{}, cache.PayloadRef{}, errkind.New(errkind.NotFound, "payload not found: "+payloadKey)
	}
	payload := r.manifest.Payloads[idx]

	src := acquire.Source{
		Key:         payload.Key,
		DownloadURL: payload.DownloadURL,
		Size:        payload.Size,
	}
	if payload.SourcePath != "" {
		if filepath.IsAbs(payload.SourcePath) {
			src.LocalPath = payload.SourcePath
		} else {
			src.RelativePath = payload.SourcePath
		}
	}

	ref := cache.PayloadRef{
		Key:         payload.Key,
		RelPath:     payload.FilePath,
		Size:        payload.Size,
		Hash:        payload.Hash,
		CatalogFile: payload.CatalogFile,
	}

	return src, ref, nil
}

// ContainerSourceFor returns the acquisition source for the container
// identified by containerID.
func (r *ManifestResolver) ContainerSourceFor(containerID string) (acquire.Source, error) {
	for _, c := range r.manifest.Containers {
		if c.ID != containerID {
			continue
		}
		src := acquire.Source{
			Key:         c.ID,
			DownloadURL: c.DownloadURL,
			Size:        c.Size,
		}
		if c.SourcePath != "" {
			if filepath.IsAbs(c.SourcePath) {
				src.LocalPath = c.SourcePath
			} else {
				src.RelativePath = c.SourcePath
			}
		}
		return src, nil
	}
	return acquire.Source{}, errkind.New(errkind.NotFound, "container not found: "+containerID)
}
