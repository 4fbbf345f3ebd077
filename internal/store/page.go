package store

// Items per page, matching the listing windows of the web UI.
const (
	PageSize     = 10
	NotePageSize = 5
)

type PageInfo struct {
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// clampPage normalizes a requested page number against the total result
// count. Out-of-range pages clamp silently: below 1 becomes 1, beyond the
// last page becomes the last page. An empty collection yields page 1 with
// zero totals.
func clampPage(page, pageSize, totalItems int) PageInfo {
	totalPages := (totalItems + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return PageInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

func (p PageInfo) offset() int {
	return (p.Page - 1) * p.PageSize
}
