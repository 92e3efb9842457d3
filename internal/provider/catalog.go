package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Descriptor is one entry of providers.json
type Descriptor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Abilities   []string `json:"abilities"`
	LogoPath    string   `json:"logoPath,omitempty"`
}

// Catalog is the static provider metadata file
type Catalog struct {
	Providers []Descriptor `json:"providers"`
}

// Listing is a descriptor with its logo inlined as a data URI
type Listing struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Abilities   []string `json:"abilities"`
	Logo        *string  `json:"logo"`
}

// LoadCatalog reads providers.json
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	return &catalog, nil
}

// IDs returns the lower-cased provider ids
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		ids = append(ids, strings.ToLower(p.ID))
	}
	return ids
}

// Listings resolves logo paths relative to baseDir. A logo that cannot be
// read is reported as null.
func (c *Catalog) Listings(baseDir string, logger *slog.Logger) []Listing {
	listings := make([]Listing, 0, len(c.Providers))

	for _, p := range c.Providers {
		listing := Listing{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Abilities:   p.Abilities,
		}

		if p.LogoPath != "" {
			logo, err := EncodeLogo(filepath.Join(baseDir, p.LogoPath))
			if err != nil {
				logger.Warn("Failed to load provider logo",
					slog.String("provider", p.ID),
					slog.String("logo_path", p.LogoPath),
					slog.String("error", err.Error()),
				)
			} else {
				listing.Logo = &logo
			}
		}

		listings = append(listings, listing)
	}

	return listings
}

// EncodeLogo reads an image and returns it as a base64 data URI
func EncodeLogo(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("data:%s;base64,%s", logoMimeType(path), base64.StdEncoding.EncodeToString(data)), nil
}

func logoMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/svg+xml"
	}
}
