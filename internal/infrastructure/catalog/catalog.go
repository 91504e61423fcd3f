// Package catalog loads the ordered risk category catalog.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

type file struct {
	Categories []domain.Category `yaml:"categories"`
}

// Load returns the built-in catalog when path is empty, otherwise the catalog read
// from the YAML file at path.
func Load(path string) ([]domain.Category, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.NormalizeCatalog(domain.DefaultCategories())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]domain.Category, error) {
	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse category catalog", err)
	}
	if len(parsed.Categories) == 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse category catalog", fmt.Errorf("catalog has no categories"))
	}
	categories, err := domain.NormalizeCatalog(parsed.Categories)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "validate category catalog", err)
	}
	return categories, nil
}

// Marshal renders a catalog in the file format Load reads.
func Marshal(categories []domain.Category) ([]byte, error) {
	return yaml.Marshal(file{Categories: categories})
}
