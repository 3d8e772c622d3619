// Package util - filesystem helpers for batch detection.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the position of the file in name order.
	Frame int
}

// IsImageFile reports whether name has a decodable image extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}

// ListDirectoryImages returns the image paths directly inside dir, sorted
// by file name.
func ListDirectoryImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The files in name order with their raw bytes.
// - error: Error if listing or reading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	paths, err := ListDirectoryImages(dir)
	if err != nil {
		return nil, err
	}

	images := make([]ImageFile, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read image %s", p)
		}
		images = append(images, ImageFile{Path: p, Data: data, Frame: i})
	}
	return images, nil
}
