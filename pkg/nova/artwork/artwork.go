// Package artwork handles the Images/ and Coverart/ folders shared by bot
// and persona subtrees: base64 data-URL uploads, listings with GUI-facing
// URLs, and promoting an uploaded image to cover art. Serving the file
// bytes to a browser is the GUI's job, not this package's.
package artwork

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// Image is a stored image with the URL the GUI uses to reference it.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// List returns the files in dir sorted by name, with URLs under urlPrefix.
func List(dir, urlPrefix string) []Image {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Image, 0, len(names))
	for _, name := range names {
		out = append(out, Image{Name: name, URL: urlPrefix + "/" + name})
	}
	return out
}

// FirstURL returns the URL of the first file in dir, or "" when empty.
// Used as the cover-art fallback when no explicit reference is stored.
func FirstURL(dir, urlPrefix string) string {
	images := List(dir, urlPrefix)
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// Add decodes a base64 data URL and stores it under a sanitized filename.
func Add(dir, filename, dataURL, urlPrefix string) (*Image, error) {
	safe := fsrecord.Sanitize(filepath.Base(filename))
	if safe == "" || safe == "." {
		safe = "image.png"
	}

	encoded := dataURL
	if idx := strings.Index(dataURL, ","); idx >= 0 {
		encoded = dataURL[idx+1:]
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image folder: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, safe), payload, 0o644); err != nil {
		return nil, fmt.Errorf("writing image: %w", err)
	}
	return &Image{Name: safe, URL: urlPrefix + "/" + safe}, nil
}

// Delete removes one image file.
func Delete(dir, filename string) error {
	path := filepath.Join(dir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("image %q: %w", filename, fsrecord.ErrNotFound)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting image %q: %w", filename, err)
	}
	return nil
}

// Copy duplicates an image from one folder into another (Images -> Coverart)
// and returns the destination filename.
func Copy(srcDir, dstDir, filename string) (string, error) {
	safe := filepath.Base(filename)
	src, err := os.Open(filepath.Join(srcDir, safe))
	if err != nil {
		return "", fmt.Errorf("image %q: %w", filename, fsrecord.ErrNotFound)
	}
	defer src.Close()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cover folder: %w", err)
	}
	dst, err := os.Create(filepath.Join(dstDir, safe))
	if err != nil {
		return "", fmt.Errorf("creating cover file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copying image %q: %w", filename, err)
	}
	return safe, nil
}
