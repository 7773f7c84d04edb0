package bots

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/project-nova/nova/pkg/nova/artwork"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// exists reports a NotFound error for a missing image file.
func exists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("image %q: %w", filepath.Base(path), fsrecord.ErrNotFound)
	}
	return nil
}

func (s *Store) imagesDir(bot string) string { return filepath.Join(s.botDir(bot), "Images") }
func (s *Store) coverDir(bot string) string  { return filepath.Join(s.botDir(bot), "Coverart") }

func (s *Store) imagesURL(bot string) string { return "/Bots/" + bot + "/Images" }
func (s *Store) coverURL(bot string) string  { return "/Bots/" + bot + "/Coverart" }

// ListImages lists a bot's uploaded images.
func (s *Store) ListImages(bot string) []artwork.Image {
	return artwork.List(s.imagesDir(bot), s.imagesURL(bot))
}

// AddImage stores a base64 data-URL upload in the bot's Images folder.
func (s *Store) AddImage(bot, filename, dataURL string) (*artwork.Image, error) {
	return artwork.Add(s.imagesDir(bot), filename, dataURL, s.imagesURL(bot))
}

// DeleteImage removes one uploaded image.
func (s *Store) DeleteImage(bot, filename string) error {
	return artwork.Delete(s.imagesDir(bot), filename)
}

// SetCoverArtFromImage copies an uploaded image into Coverart/ and points
// both the cover and icon references at it.
func (s *Store) SetCoverArtFromImage(bot, filename string) (*Bot, error) {
	safe, err := artwork.Copy(s.imagesDir(bot), s.coverDir(bot), filename)
	if err != nil {
		return nil, err
	}
	url := s.coverURL(bot) + "/" + safe
	return s.ApplyUpdate(bot, Update{CoverArt: &url, IconArt: &url})
}

// SetIconFromImage points the icon reference at an existing image in either
// the Images or Coverart folder.
func (s *Store) SetIconFromImage(bot, filename, sourceFolder string) (*Bot, error) {
	var url string
	if sourceFolder == "Coverart" {
		if err := exists(filepath.Join(s.coverDir(bot), filepath.Base(filename))); err != nil {
			return nil, err
		}
		url = s.coverURL(bot) + "/" + filepath.Base(filename)
	} else {
		if err := exists(filepath.Join(s.imagesDir(bot), filepath.Base(filename))); err != nil {
			return nil, err
		}
		url = s.imagesURL(bot) + "/" + filepath.Base(filename)
	}
	return s.ApplyUpdate(bot, Update{IconArt: &url})
}
