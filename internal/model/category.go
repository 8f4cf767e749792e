package model

import "time"

// Category is a node of the shared, global taxonomy. Categories are not owned
// by any user.
//
// Parent and Children are only populated by listings and are expanded one
// level deep: the nested categories never carry their own Parent/Children.
type Category struct {
	ID        string     `json:"id"                 db:"id"`
	Name      string     `json:"name"               db:"name"`
	ParentID  *string    `json:"parentId"           db:"parent_id"` // nil for a root
	Parent    *Category  `json:"parent,omitempty"`
	Children  []Category `json:"children,omitempty"`
	CreatedAt time.Time  `json:"createdAt"          db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt"          db:"updated_at"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}
