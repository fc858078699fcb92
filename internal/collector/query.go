package collector

// Filter selects entries. A nil Filter matches everything.
type Filter[T Typed] func(Entry[T]) bool

// Order controls how retained segments are concatenated. Entries inside a
// segment always keep insertion order.
type Order int

const (
	// NewestFirst lists the current segment first, then preserved segments from
	// newest to oldest.
	NewestFirst Order = iota
	// OldestFirst lists the oldest preserved segment first, so ids ascend.
	OldestFirst
)

// Query selects a page of entries.
type Query[T Typed] struct {
	IncludePreserved bool
	Filter           Filter[T]
	PageSize         int
	PageIdx          int
	Order            Order
}

// Page is one slice of a filtered listing. Start and End are 1-based and
// inclusive; both are 0 when Entries is empty.
type Page[T Typed] struct {
	Entries    []Entry[T] `json:"entries"`
	Total      int        `json:"total"`
	PageIdx    int        `json:"page_idx"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	NextPage   *int       `json:"next_page,omitempty"`
	PrevPage   *int       `json:"prev_page,omitempty"`
}

// Data filters, orders and paginates the retained entries. Out-of-range pages
// come back empty with Total intact.
func (c *Collector[T]) Data(q Query[T]) Page[T] {
	c.mu.RLock()
	var matched []Entry[T]
	visit := func(s *segment[T]) {
		for _, e := range s.entries {
			if q.Filter == nil || q.Filter(*e) {
				matched = append(matched, *e)
			}
		}
	}
	switch {
	case !q.IncludePreserved:
		visit(c.segments[0])
	case q.Order == OldestFirst:
		for i := len(c.segments) - 1; i >= 0; i-- {
			visit(c.segments[i])
		}
	default:
		for _, s := range c.segments {
			visit(s)
		}
	}
	c.mu.RUnlock()

	return paginate(matched, q.PageSize, q.PageIdx)
}

func paginate[T Typed](all []Entry[T], size, idx int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if idx < 0 {
		idx = 0
	}
	total := len(all)
	pages := total / size
	if total%size != 0 {
		pages++
	}

	p := Page[T]{
		Entries:    []Entry[T]{},
		Total:      total,
		PageIdx:    idx,
		PageSize:   size,
		TotalPages: pages,
	}

	// idx < pages bounds idx*size below total, so neither sum can overflow.
	if idx < pages {
		start := idx * size
		end := total
		if size < total-start {
			end = start + size
		}
		p.Entries = all[start:end]
		p.Start, p.End = start+1, end
		if end < total {
			next := idx + 1
			p.NextPage = &next
		}
	}
	if idx > 0 && pages > 0 {
		prev := idx - 1
		if prev > pages-1 {
			prev = pages - 1
		}
		p.PrevPage = &prev
	}
	return p
}

// All matches entries accepted by every non-nil filter.
func All[T Typed](filters ...Filter[T]) Filter[T] {
	var active []Filter[T]
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(e Entry[T]) bool {
		for _, f := range active {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// TypeIn matches entries whose type tag is one of types. No types matches all.
func TypeIn[T Typed](types ...string) Filter[T] {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(e Entry[T]) bool { return set[e.Type] }
}
