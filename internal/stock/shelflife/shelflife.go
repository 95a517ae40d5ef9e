// Package shelflife classifies products into perishability categories and
// supplies default shelf lives for intakes without an explicit expiry date.
package shelflife

import "strings"

// Category is a perishability class for a product
type Category string

const (
	Fresh     Category = "FRESH"
	Dairy     Category = "DAIRY"
	Staples   Category = "STAPLES"
	Fruits    Category = "FRUITS"
	Snacks    Category = "SNACKS"
	Beverages Category = "BEVERAGES"
	General   Category = "GENERAL"
)

// keywordRule maps name substrings to a category. Rules are checked in order;
// the first match wins.
type keywordRule struct {
	keywords []string
	category Category
}

var rules = []keywordRule{
	{[]string{"sandwich", "roll", "fresh", "paneer"}, Fresh},
	{[]string{"milk", "yogurt", "cheese", "lassi"}, Dairy},
	{[]string{"bread", "wheat", "rice"}, Staples},
	{[]string{"apple", "fruit"}, Fruits},
	{[]string{"coke", "soda", "juice"}, Beverages},
	{[]string{"chip", "snack", "chocolate"}, Snacks},
}

var shelfLifeDays = map[Category]int{
	Fresh:     1,
	Dairy:     4,
	Staples:   3,
	Fruits:    7,
	Snacks:    90,
	Beverages: 180,
	General:   30,
}

// Classify returns the perishability category for a product name using
// case-insensitive substring matching. Unmatched names fall back to General.
func Classify(name string) Category {
	lower := strings.ToLower(name)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return General
}

// Days returns the default shelf life in days for a category.
func Days(c Category) int {
	if days, ok := shelfLifeDays[c]; ok {
		return days
	}
	return shelfLifeDays[General]
}

// DaysFor returns the default shelf life in days for a product name.
func DaysFor(name string) int {
	return Days(Classify(name))
}
