package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/veriface/internal/types"
)

// readCapture decodes a descriptor JSON file: one flat array or an array of
// arrays. "-" reads stdin.
func readCapture(path string) (types.Capture, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return types.Capture{}, err
		}
		defer f.Close()
		r = f
	}
	var c types.Capture
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return types.Capture{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// readImages loads every image file into memory.
func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("input file %s does not exist", p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}
