package domain

import "strings"

// AllCategoryID identifies the pseudo-category that matches every task.
const AllCategoryID = "all"

// Category groups tasks on the board.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// AllCategory returns the pseudo-category listed first in every category list.
func AllCategory() Category {
	return Category{ID: AllCategoryID, Name: "All", Color: "#6B7280", Icon: "Grid3X3"}
}

func (c Category) IsAll() bool { return c.ID == AllCategoryID }

// IsAllCategoryID reports whether id selects every category.
func IsAllCategoryID(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || strings.EqualFold(id, AllCategoryID)
}

// Subcategory narrows a category.
type Subcategory struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ParentCategoryID int64  `json:"parentCategoryId"`
	Color            string `json:"color,omitempty"`
	Icon             string `json:"icon,omitempty"`
}

// SubcategoryInput is the payload for creating or replacing a subcategory.
type SubcategoryInput struct {
	Name             string `json:"name"`
	ParentCategoryID int64  `json:"parentCategoryId"`
	Color            string `json:"color"`
	Icon             string `json:"icon"`
}

func (in SubcategoryInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	return nil
}
