// Package pagination computes deterministic page windows over counted lists.
// The engine holds no state: the requested page travels inside the callback
// token and the window is re-derived on every request, so a list that shrank
// between interactions simply clamps down.
package pagination

// DefaultPageSize is the number of entries shown per page.
const DefaultPageSize = 10

// Window clamps requestedPage against the list size. totalPages is at least 1
// even for an empty list; the returned page always lies in [1, totalPages].
func Window(totalCount, pageSize, requestedPage int) (page, totalPages int) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	totalPages = (totalCount + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page = requestedPage
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, totalPages
}

// Offset converts a clamped page into the backing query offset.
func Offset(page, pageSize int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * pageSize
}
