package course

// DefaultPageSize courses per catalog page
const DefaultPageSize = 10

// Page one slice of the catalog
type Page struct {
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Pages   int       `json:"pages"`
	Total   int       `json:"total"`
	Courses []*Course `json:"courses"`
}

// Paginate cut courses into the 1-based page, out of range pages are empty
func Paginate(courses []*Course, page, perPage int) *Page {
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(courses)
	result := &Page{
		Page:    page,
		PerPage: perPage,
		Pages:   (total + perPage - 1) / perPage,
		Total:   total,
		Courses: []*Course{},
	}

	// compared before multiplying, huge pages would overflow
	if page > result.Pages {
		return result
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	result.Courses = courses[start:end]
	return result
}
