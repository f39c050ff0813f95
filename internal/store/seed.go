package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fleetads/internal/model"
)

type seedRoute struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type seedCity struct {
	Name   string      `yaml:"name"`
	Routes []seedRoute `yaml:"routes"`
}

type seedAsset struct {
	ID          string `yaml:"id"`
	Owner       string `yaml:"owner"`
	URL         string `yaml:"url"`
	DurationSec int    `yaml:"durationSec"`
	Checksum    string `yaml:"checksum"`
	Validated   bool   `yaml:"validated"`
}

type seedFile struct {
	Cities []seedCity  `yaml:"cities"`
	Assets []seedAsset `yaml:"assets"`
}

// SeedFromFile loads a YAML fixture of cities, routes (each provisioned with
// its truck), and media assets into the store. Returns the number of routes
// created. Intended for dev/demo bootstrap.
func SeedFromFile(ctx context.Context, s Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	routes := 0
	for _, sc := range f.Cities {
		city, err := s.CreateCity(ctx, sc.Name)
		if err != nil {
			return routes, fmt.Errorf("seed city %q: %w", sc.Name, err)
		}
		for _, sr := range sc.Routes {
			if _, _, err := s.CreateRoute(ctx, city.ID, sr.Name, sr.Description); err != nil {
				return routes, fmt.Errorf("seed route %q: %w", sr.Name, err)
			}
			routes++
		}
	}
	for _, sa := range f.Assets {
		a := model.Asset{
			ID:          sa.ID,
			OwnerID:     sa.Owner,
			URL:         sa.URL,
			DurationSec: sa.DurationSec,
			Checksum:    sa.Checksum,
			Validated:   sa.Validated,
		}
		if _, err := s.CreateAsset(ctx, a); err != nil {
			return routes, fmt.Errorf("seed asset %q: %w", sa.URL, err)
		}
	}
	return routes, nil
}
