package fields

import (
	"fmt"
	"math"
	"sort"
)

// Category classifies a correct/discovered pair. Lower categories sort first.
type Category int

const (
	// CategoryMismatch: a correct value exists and the discovered value is
	// missing or different.
	CategoryMismatch Category = iota + 1
	// CategoryUnexpected: no correct value but something was discovered.
	CategoryUnexpected
	// CategoryMatch: both present and equal after normalization.
	CategoryMatch
	// CategoryBothEmpty: neither side has content.
	CategoryBothEmpty
)

var categoryNames = map[Category]string{
	CategoryMismatch:   "mismatch",
	CategoryUnexpected: "unexpected",
	CategoryMatch:      "match",
	CategoryBothEmpty:  "both_empty",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	for k, name := range categoryNames {
		if name == string(text) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", text)
}

// Comparison is the outcome of comparing one field.
type Comparison struct {
	Category Category `json:"category"`
	// Match is the case and whitespace insensitive equality used for scoring.
	Match bool `json:"match"`
	// ExactMatch is raw stored-string equality, shown as the per-row badge.
	ExactMatch bool `json:"exact_match"`
}

// Compare classifies a correct/discovered value pair.
func Compare(correct, discovered Value) Comparison {
	match := correct.Normalized() == discovered.Normalized()
	cs, cok := correct.Stored()
	ds, dok := discovered.Stored()
	exact := cok == dok && cs == ds

	var cat Category
	switch {
	case correct.IsPresent() && (!discovered.IsPresent() || !match):
		cat = CategoryMismatch
	case !correct.IsPresent() && discovered.IsPresent():
		cat = CategoryUnexpected
	case correct.IsPresent() && discovered.IsPresent():
		cat = CategoryMatch
	default:
		cat = CategoryBothEmpty
	}
	return Comparison{Category: cat, Match: match, ExactMatch: exact}
}

// Row is one field of a side-by-side comparison.
type Row struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Correct    Value  `json:"correct"`
	Discovered Value  `json:"discovered"`
	Comparison
}

// CompareSets compares every field and orders the rows by category,
// keeping definition order within a category.
func CompareSets(correct, discovered Set) []Row {
	rows := make([]Row, 0, Count)
	for i, d := range definitions {
		rows = append(rows, Row{
			Key:        d.Key,
			Label:      d.Label,
			Correct:    correct.values[i],
			Discovered: discovered.values[i],
			Comparison: Compare(correct.values[i], discovered.values[i]),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Category < rows[j].Category
	})
	return rows
}

// Score returns the percentage of evaluable fields the discovered set got
// right. A field is evaluable when its correct value is not Unknown; the
// Empty sentinel is evaluable and expects Empty back. ok is false when the
// correct set has no field with content.
func Score(correct, discovered Set) (score int, ok bool) {
	if correct.PresentCount() == 0 {
		return 0, false
	}
	total, right := tally(correct, discovered)
	return percent(right, total), true
}

func tally(correct, discovered Set) (total, right int) {
	for i := range definitions {
		c := correct.values[i]
		if c.IsUnknown() {
			continue
		}
		total++
		if c.Normalized() == discovered.values[i].Normalized() {
			right++
		}
	}
	return total, right
}

func percent(right, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(right) / float64(total) * 100))
}
