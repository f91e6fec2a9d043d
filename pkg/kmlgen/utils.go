package kmlgen

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// GenKmlName derives the overlay file name from the image it describes.
// The overlay sits next to the image.
func GenKmlName(img string, plain bool) string {
	ext := filepath.Ext(img)
	outfn := strings.TrimSuffix(img, ext)
	if plain {
		return outfn + ".kml"
	}
	return outfn + ".kmz"
}

// writeFile writes to a temporary file beside outfn and renames it over
// outfn on success, so a failed write leaves any earlier overlay intact.
func writeFile(outfn string, write func(io.Writer) error) error {
	dir, base := filepath.Split(outfn)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		os.Chmod(tmp, 0644)
		err = os.Rename(tmp, outfn)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}
