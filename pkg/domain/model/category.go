package model

// Category is the change category assigned by the classification engine
type Category string

const (
	CategoryBreaking Category = "breaking"
	CategoryFeature  Category = "feature"
	CategoryBugfix   Category = "bugfix"
	CategoryDocs     Category = "docs"
	CategoryChore    Category = "chore"
	CategoryUnknown  Category = "unknown"
)

// Categories lists all categories in rendering order
var Categories = []Category{
	CategoryBreaking,
	CategoryFeature,
	CategoryBugfix,
	CategoryDocs,
	CategoryChore,
	CategoryUnknown,
}

// IsValid reports whether c is one of the fixed enumeration values
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Rank returns the rendering position of c; unknown values sort last
func (c Category) Rank() int {
	for i, v := range Categories {
		if c == v {
			return i
		}
	}
	return len(Categories)
}

// InternalLabel is the heading used in technical summaries
func (c Category) InternalLabel() string {
	switch c {
	case CategoryBreaking:
		return "Breaking Changes"
	case CategoryFeature:
		return "Features"
	case CategoryBugfix:
		return "Bug Fixes"
	case CategoryDocs:
		return "Documentation"
	case CategoryChore:
		return "Maintenance"
	default:
		return "Other Changes"
	}
}

// ExternalLabel is the plain-language heading used in customer-facing summaries
func (c Category) ExternalLabel() string {
	switch c {
	case CategoryBreaking:
		return "Important changes"
	case CategoryFeature:
		return "New features"
	case CategoryBugfix:
		return "Bug fixes"
	case CategoryDocs:
		return "Documentation updates"
	case CategoryChore:
		return "General improvements"
	default:
		return "Other updates"
	}
}
