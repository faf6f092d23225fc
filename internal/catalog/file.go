package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk seed format consumed by `region-relay catalog import`.
//
//	country_keyword: country
//	regions:
//	  - code: CENTRAL
//	    aliases: [capital, cap]
//	tags: [A, B, C]
type File struct {
	CountryKeyword string   `yaml:"country_keyword"`
	Regions        []Region `yaml:"regions"`
	Tags           []string `yaml:"tags"`
}

func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("decode catalog yaml: %w", err)
	}
	if len(file.Regions) == 0 {
		return File{}, ErrEmptyCatalog
	}
	return file, nil
}

// Build validates the file by constructing the immutable catalog it describes.
func (f File) Build(opts ...Option) (*Catalog, error) {
	if f.CountryKeyword != "" {
		opts = append([]Option{WithCountryKeyword(f.CountryKeyword)}, opts...)
	}
	return New(f.Regions, f.Tags, opts...)
}
