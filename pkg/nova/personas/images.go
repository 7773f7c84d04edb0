package personas

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/project-nova/nova/pkg/nova/artwork"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

func (s *Store) imagesDir(id string) string { return filepath.Join(s.personaDir(id), "Images") }
func (s *Store) coverDir(id string) string  { return filepath.Join(s.personaDir(id), "Coverart") }

func (s *Store) imagesURL(id string) string { return "/Personas/" + id + "/Images" }
func (s *Store) coverURL(id string) string  { return "/Personas/" + id + "/Coverart" }

// ListImages lists a persona's uploaded images.
func (s *Store) ListImages(id string) []artwork.Image {
	return artwork.List(s.imagesDir(id), s.imagesURL(id))
}

// AddImage stores a base64 data-URL upload in the persona's Images folder.
func (s *Store) AddImage(id, filename, dataURL string) (*artwork.Image, error) {
	return artwork.Add(s.imagesDir(id), filename, dataURL, s.imagesURL(id))
}

// DeleteImage removes one uploaded image.
func (s *Store) DeleteImage(id, filename string) error {
	return artwork.Delete(s.imagesDir(id), filename)
}

// SetCoverArtFromImage copies an uploaded image into Coverart/ and points the
// cover and icon references at it.
func (s *Store) SetCoverArtFromImage(id, filename string) (*Persona, error) {
	safe, err := artwork.Copy(s.imagesDir(id), s.coverDir(id), filename)
	if err != nil {
		return nil, err
	}
	url := s.coverURL(id) + "/" + safe
	return s.ApplyUpdate(id, Update{CoverArt: &url, IconArt: &url})
}

// SetIconFromImage points the icon reference at an existing image in either
// the Images or Coverart folder.
func (s *Store) SetIconFromImage(id, filename, sourceFolder string) (*Persona, error) {
	name := filepath.Base(filename)
	var dir, urlPrefix string
	if sourceFolder == "Coverart" {
		dir, urlPrefix = s.coverDir(id), s.coverURL(id)
	} else {
		dir, urlPrefix = s.imagesDir(id), s.imagesURL(id)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return nil, fmt.Errorf("image %q: %w", name, fsrecord.ErrNotFound)
	}
	url := urlPrefix + "/" + name
	return s.ApplyUpdate(id, Update{IconArt: &url})
}
