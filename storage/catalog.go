package storage

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"taskboard/records"
)

// Collections holding the catalog.
const (
	CategoryCollection    = "category_c"
	SubcategoryCollection = "subcategory_c"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogEntry is a category or subcategory in the seed file.
type CatalogEntry struct {
	Name          string         `yaml:"name"`
	Color         string         `yaml:"color"`
	Icon          string         `yaml:"icon"`
	Subcategories []CatalogEntry `yaml:"subcategories,omitempty"`
}

// Catalog is the default set of categories loaded into a fresh store.
type Catalog struct {
	Categories []CatalogEntry `yaml:"categories"`
}

// LoadCatalog reads a catalog file. An empty path selects the built-in
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("catalog category %d has no name", i)
		}
		for j, sub := range cat.Subcategories {
			if strings.TrimSpace(sub.Name) == "" {
				return nil, fmt.Errorf("catalog subcategory %d of %s has no name", j, cat.Name)
			}
		}
	}
	return &c, nil
}

func fetchAll(ctx context.Context, store records.Store, collection string, fields ...string) ([]records.Record, error) {
	var out []records.Record
	for offset := 0; ; offset += records.MaxLimit {
		page, err := store.FetchRecords(ctx, collection, records.Query{
			Fields:     records.Fields(fields...),
			OrderBy:    []records.OrderBy{{FieldName: records.FieldID, SortType: records.Asc}},
			PagingInfo: &records.PagingInfo{Limit: records.MaxLimit, Offset: offset},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < records.MaxLimit {
			return out, nil
		}
	}
}

// Seed creates the catalog entries missing from store. Categories are matched
// by name and subcategories by parent and name, so seeding twice is a no-op.
// It returns the number of records created.
func (c *Catalog) Seed(ctx context.Context, store records.Store) (int, error) {
	existing, err := fetchAll(ctx, store, CategoryCollection, records.FieldID, records.FieldName)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	ids := make(map[string]int64, len(existing))
	for _, r := range existing {
		if id, ok := r.ID(); ok {
			ids[strings.ToLower(r.String(records.FieldName))] = id
		}
	}

	var missing []records.Record
	for _, cat := range c.Categories {
		if _, ok := ids[strings.ToLower(cat.Name)]; ok {
			continue
		}
		missing = append(missing, records.Record{
			records.FieldName: cat.Name,
			"color_c":         cat.Color,
			"icon_c":          cat.Icon,
		})
	}
	created := 0
	if len(missing) > 0 {
		results, err := store.CreateRecords(ctx, CategoryCollection, missing)
		if err != nil {
			return 0, fmt.Errorf("create categories: %w", err)
		}
		ok, err := records.Split("create", CategoryCollection, results)
		if err != nil {
			return len(ok), err
		}
		for _, r := range ok {
			if id, found := r.ID(); found {
				ids[strings.ToLower(r.String(records.FieldName))] = id
			}
		}
		created += len(ok)
	}

	subs, err := fetchAll(ctx, store, SubcategoryCollection, records.FieldID, records.FieldName, "parent_category_id_c")
	if err != nil {
		return created, fmt.Errorf("list subcategories: %w", err)
	}
	seen := make(map[string]bool, len(subs))
	for _, r := range subs {
		seen[fmt.Sprintf("%d/%s", r.Int64("parent_category_id_c"), strings.ToLower(r.String(records.FieldName)))] = true
	}
	var newSubs []records.Record
	for _, cat := range c.Categories {
		parent, ok := ids[strings.ToLower(cat.Name)]
		if !ok {
			continue
		}
		for _, sub := range cat.Subcategories {
			if seen[fmt.Sprintf("%d/%s", parent, strings.ToLower(sub.Name))] {
				continue
			}
			newSubs = append(newSubs, records.Record{
				records.FieldName:      sub.Name,
				"parent_category_id_c": parent,
				"color_c":              sub.Color,
				"icon_c":               sub.Icon,
			})
		}
	}
	if len(newSubs) > 0 {
		results, err := store.CreateRecords(ctx, SubcategoryCollection, newSubs)
		if err != nil {
			return created, fmt.Errorf("create subcategories: %w", err)
		}
		ok, err := records.Split("create", SubcategoryCollection, results)
		created += len(ok)
		if err != nil {
			return created, err
		}
	}
	log.WithField("created", created).Info("catalog seeded")
	return created, nil
}
