package inventory

import (
	"context"
	"strings"
	"sync"
)

var locationSeparators = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "")

// NormalizeLocationCode uppercases and strips separators so "o-2", "O 2" and "O2" compare equal.
func NormalizeLocationCode(code string) string {
	return strings.ToUpper(locationSeparators.Replace(strings.TrimSpace(code)))
}

// LocationClassifier answers direct-load questions from the location directory,
// loaded once per classifier.
type LocationClassifier struct {
	store  Store
	mu     sync.Mutex
	loaded bool
	byCode map[string]Location
}

func NewLocationClassifier(store Store) *LocationClassifier {
	return &LocationClassifier{store: store}
}

func (c *LocationClassifier) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	locations, err := c.store.ListLocations(ctx)
	if err != nil {
		return wrapStoreError("location lookup", err)
	}
	c.byCode = make(map[string]Location, len(locations))
	for _, l := range locations {
		c.byCode[NormalizeLocationCode(l.Code)] = l
	}
	c.loaded = true
	return nil
}

// IsDirectLoad is false for unknown locations.
func (c *LocationClassifier) IsDirectLoad(ctx context.Context, code string) (bool, error) {
	if err := c.load(ctx); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byCode[NormalizeLocationCode(code)].IsDirectLoad, nil
}

// Lookup reports the directory entry for code.
func (c *LocationClassifier) Lookup(ctx context.Context, code string) (Location, bool, error) {
	if err := c.load(ctx); err != nil {
		return Location{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.byCode[NormalizeLocationCode(code)]
	return l, ok, nil
}

// Canonical returns the directory spelling of code, or the trimmed input when unknown.
func (c *LocationClassifier) Canonical(ctx context.Context, code string) (string, error) {
	if err := c.load(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.byCode[NormalizeLocationCode(code)]; ok {
		return l.Code, nil
	}
	return strings.ToUpper(strings.TrimSpace(code)), nil
}
