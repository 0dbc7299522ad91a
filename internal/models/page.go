package models

// Page is one page of a page-number paginated listing. CurrentPage is
// 1-indexed.
type Page[T any] struct {
	Items       []T  `json:"items"`
	HasMore     bool `json:"hasMore"`
	TotalPages  int  `json:"totalPages"`
	CurrentPage int  `json:"currentPage"`
}
