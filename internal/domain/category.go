package domain

import "strings"

// Category is one of the fixed award categories the audience votes on
type Category string

// Award categories. The set is closed: votes for anything else are rejected.
const (
	CategoryKing                 Category = "King"
	CategoryQueen                Category = "Queen"
	CategoryPrince               Category = "Prince"
	CategoryPrincess             Category = "Princess"
	CategoryBestCostumeMale      Category = "Best Costume Male"
	CategoryBestCostumeFemale    Category = "Best Costume Female"
	CategoryBestPerformanceAward Category = "Best Performance Award"
)

// allCategories keeps display order
var allCategories = []Category{
	CategoryKing,
	CategoryQueen,
	CategoryPrince,
	CategoryPrincess,
	CategoryBestCostumeMale,
	CategoryBestCostumeFemale,
	CategoryBestPerformanceAward,
}

var categorySet = func() map[Category]struct{} {
	set := make(map[Category]struct{}, len(allCategories))
	for _, c := range allCategories {
		set[c] = struct{}{}
	}
	return set
}()

// Categories returns the closed category enumeration in display order
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory validates a raw category name against the closed set.
// Matching is exact after trimming surrounding whitespace.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.TrimSpace(raw))
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// Valid reports whether c belongs to the closed set
func (c Category) Valid() bool {
	_, ok := categorySet[c]
	return ok
}

func (c Category) String() string {
	return string(c)
}
