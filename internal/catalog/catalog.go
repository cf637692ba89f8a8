// Package catalog holds the static tier-to-file mapping.
// The catalog is loaded once at startup and never mutated afterwards.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tiergate/tiergate/internal/model"
)

// PageSize is the number of files shown per page by the presentation
// layer. Exposed here so the excluded UI adapter and the API agree.
const PageSize = 12

type fileSpec struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type tierSpec struct {
	Name  string     `yaml:"name"`
	Files []fileSpec `yaml:"files"`
}

type catalogSpec struct {
	Tiers  []tierSpec `yaml:"tiers"`
	Global []fileSpec `yaml:"global"`
}

// Catalog maps tier names to ordered file lists plus an always-included
// global set.
type Catalog struct {
	tierOrder []string
	byTier    map[string][]model.FileDescriptor
	global    []model.FileDescriptor
}

// Load reads and parses a catalog definition file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var spec catalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{byTier: make(map[string][]model.FileDescriptor)}
	for _, tier := range spec.Tiers {
		if tier.Name == "" {
			return nil, fmt.Errorf("catalog tier with empty name")
		}
		if _, exists := c.byTier[tier.Name]; exists {
			return nil, fmt.Errorf("duplicate catalog tier %q", tier.Name)
		}
		files := make([]model.FileDescriptor, 0, len(tier.Files))
		for _, f := range tier.Files {
			if f.Name == "" || f.URL == "" {
				return nil, fmt.Errorf("tier %q: file entries need both name and url", tier.Name)
			}
			files = append(files, model.FileDescriptor{
				Name:      f.Name,
				SourceURL: f.URL,
				Tier:      tier.Name,
			})
		}
		c.tierOrder = append(c.tierOrder, tier.Name)
		c.byTier[tier.Name] = files
	}

	for _, f := range spec.Global {
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("global file entries need both name and url")
		}
		c.global = append(c.global, model.FileDescriptor{
			Name:      f.Name,
			SourceURL: f.URL,
			Tier:      model.TierNone,
		})
	}

	return c, nil
}

// TierNames returns all tier names in catalog-definition order.
func (c *Catalog) TierNames() []string {
	return append([]string{}, c.tierOrder...)
}

// FilesFor expands a tier set into a concrete file list. Tiers are walked
// in the caller's order, files within a tier in catalog order, and
// duplicates are dropped by source URL (not name). The global files are
// appended last, deduplicated against what's already collected.
func (c *Catalog) FilesFor(tiers []string) []model.FileDescriptor {
	files := make([]model.FileDescriptor, 0)
	seen := make(map[string]struct{})

	for _, tier := range tiers {
		for _, f := range c.byTier[tier] {
			if _, ok := seen[f.SourceURL]; ok {
				continue
			}
			seen[f.SourceURL] = struct{}{}
			files = append(files, f)
		}
	}

	for _, f := range c.global {
		if _, ok := seen[f.SourceURL]; ok {
			continue
		}
		seen[f.SourceURL] = struct{}{}
		files = append(files, f)
	}

	return files
}

// AllFiles returns every file in the system, walking tiers in
// catalog-definition order with the same URL deduplication as FilesFor.
func (c *Catalog) AllFiles() []model.FileDescriptor {
	return c.FilesFor(c.tierOrder)
}

// Find looks up a file by name, case-insensitively, within a resolved
// file list.
func Find(files []model.FileDescriptor, name string) (model.FileDescriptor, bool) {
	for _, f := range files {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return model.FileDescriptor{}, false
}
