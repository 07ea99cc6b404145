package repository

import "strings"

// Category-only categorization prefixes the description with "[Name] ". The
// marker is a display bridge next to the category_id column; the strict
// parser here is the only sanctioned way to read it back.

// ApplyCategoryMarker prefixes desc with the category marker, replacing any
// marker already present so re-categorization does not stack prefixes.
func ApplyCategoryMarker(desc, categoryName string) string {
	if _, rest, ok := StripCategoryMarker(desc); ok {
		desc = rest
	}
	return "[" + categoryName + "] " + desc
}

// StripCategoryMarker parses a leading "[Name] " marker. It returns the
// category name, the original free text, and whether a marker was present.
// Only a bracket pair at position zero followed by a single space counts;
// anything else is treated as user text.
func StripCategoryMarker(desc string) (category string, rest string, ok bool) {
	if !strings.HasPrefix(desc, "[") {
		return "", desc, false
	}
	end := strings.Index(desc, "] ")
	if end <= 1 {
		return "", desc, false
	}
	return desc[1:end], desc[end+2:], true
}
