package domain

import "strings"

// Collection groups products in the catalog.
type Collection struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug"`
	CategoryID  int    `json:"categoryId,omitempty"`
}

// Category groups collections for navigation.
type Category struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Collections []Collection `json:"collections"`
}

// Slugify lowercases a name and replaces spaces with dashes.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
