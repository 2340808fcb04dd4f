package enums

import "fmt"

// ProductCategory buckets listings for filtered search.
type ProductCategory string

const (
	ProductCategoryElectronics ProductCategory = "electronics"
	ProductCategoryFashion     ProductCategory = "fashion"
	ProductCategoryHome        ProductCategory = "home"
	ProductCategorySports      ProductCategory = "sports"
	ProductCategoryBooks       ProductCategory = "books"
	ProductCategoryToys        ProductCategory = "toys"
	ProductCategoryAuto        ProductCategory = "auto"
	ProductCategoryOther       ProductCategory = "other"
)

var validProductCategories = []ProductCategory{
	ProductCategoryElectronics,
	ProductCategoryFashion,
	ProductCategoryHome,
	ProductCategorySports,
	ProductCategoryBooks,
	ProductCategoryToys,
	ProductCategoryAuto,
	ProductCategoryOther,
}

// AllProductCategories returns the canonical category list for the catalog endpoint.
func AllProductCategories() []ProductCategory {
	out := make([]ProductCategory, len(validProductCategories))
	copy(out, validProductCategories)
	return out
}

// IsValid checks whether the given category matches the canonical enum.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw strings into ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}
