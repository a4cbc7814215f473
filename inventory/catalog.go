package inventory

import "strings"

type ProductCategory string

const (
	CategoryRice   ProductCategory = "Rice"
	CategoryBroken ProductCategory = "Broken"
	CategoryBran   ProductCategory = "Bran"
	CategoryOther  ProductCategory = "Other"
)

// Catalog is the reference data used to normalize free text. It is built once and
// passed to the engine; nothing in this package mutates it after construction.
type Catalog struct {
	// Abbreviations maps a canonical abbreviation to its spelling variants.
	abbreviations map[string][]string
	// productTypes maps a normalized alias to the canonical product type name.
	productTypes map[string]string
	categories   map[string]ProductCategory
}

type CatalogConfig struct {
	Abbreviations      map[string][]string
	ProductTypeAliases map[string]string
	Categories         map[string]ProductCategory
}

func NewCatalog(cfg CatalogConfig) *Catalog {
	c := &Catalog{
		abbreviations: make(map[string][]string, len(cfg.Abbreviations)),
		productTypes:  make(map[string]string, len(cfg.ProductTypeAliases)),
		categories:    make(map[string]ProductCategory, len(cfg.Categories)),
	}
	for abbr, forms := range cfg.Abbreviations {
		key := NormalizeText(abbr)
		all := []string{key}
		for _, f := range forms {
			if n := NormalizeText(f); n != "" {
				all = append(all, n)
			}
		}
		c.abbreviations[key] = uniqueStrings(all)
	}
	for alias, canonical := range cfg.ProductTypeAliases {
		c.productTypes[NormalizeText(alias)] = canonical
	}
	for name, cat := range cfg.Categories {
		c.categories[NormalizeText(name)] = cat
		if _, ok := c.productTypes[NormalizeText(name)]; !ok {
			c.productTypes[NormalizeText(name)] = name
		}
	}
	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog(CatalogConfig{
		Abbreviations: map[string][]string{
			"RNR":   {"R.N.R", "R.N.R.", "R N R"},
			"KNM":   {"K.N.M", "K.N.M.", "K N M"},
			"SUM25": {"SUM 25", "SUMMER25", "SUMMER 25"},
			"DEC25": {"DEC 25", "DECEMBER25", "DECEMBER 25"},
		},
		ProductTypeAliases: map[string]string{
			"RICE":             "Rice",
			"BROKEN":           "Broken",
			"BROKENS":          "Broken",
			"BRAN":             "Bran",
			"RICE BRAN":        "Bran",
			"SIZER BROKEN":     "Sizer Broken",
			"ZERO BROKEN":      "Zero Broken",
			"0 BROKEN":         "Zero Broken",
			"REJECTION BROKEN": "Rejection Broken",
			"RJ BROKEN":        "RJ Broken",
			"RJ RICE":          "RJ Rice",
			"UNPOLISH":         "Unpolish",
			"FARAM":            "Faram",
			"SELLA":            "Sella",
		},
		Categories: map[string]ProductCategory{
			"Rice":             CategoryRice,
			"Sella":            CategoryRice,
			"RJ Rice":          CategoryRice,
			"Unpolish":         CategoryRice,
			"Broken":           CategoryBroken,
			"Sizer Broken":     CategoryBroken,
			"Zero Broken":      CategoryBroken,
			"Rejection Broken": CategoryBroken,
			"RJ Broken":        CategoryBroken,
			"Bran":             CategoryBran,
			"Faram":            CategoryOther,
		},
	})
}

// ProductType returns the canonical product type for s, or s normalized to title case
// when it is not a known alias.
func (c *Catalog) ProductType(s string) string {
	n := NormalizeText(s)
	if n == "" {
		return ""
	}
	if canonical, ok := c.productTypes[n]; ok {
		return canonical
	}
	return titleCase(n)
}

func (c *Catalog) Category(productType string) ProductCategory {
	if cat, ok := c.categories[NormalizeText(c.ProductType(productType))]; ok {
		return cat
	}
	return CategoryOther
}

// abbreviationForms returns every spelling group whose forms appear as whole tokens in n.
func (c *Catalog) abbreviationForms(n string) [][]string {
	padded := " " + n + " "
	var groups [][]string
	for _, forms := range c.abbreviations {
		for _, f := range forms {
			if strings.Contains(padded, " "+f+" ") {
				groups = append(groups, forms)
				break
			}
		}
	}
	return groups
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
