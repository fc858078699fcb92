package collector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	kind string
	n    int
}

func (i item) EventType() string { return i.kind }

func collectN(c *Collector[item], n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = c.Collect(item{kind: "log", n: i + 1})
	}
	return ids
}

func entryIDs(es []Entry[item]) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func seq(from, to int64) []int64 {
	var out []int64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestCollectAssignsIncreasingIDs(t *testing.T) {
	c := New[item](3)
	ids := collectN(c, 5)
	assert.Equal(t, seq(1, 5), ids)

	e, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, 3, e.Item.n)
	assert.Equal(t, "log", e.Type)
	assert.False(t, e.Time.IsZero())

	_, ok = c.Get(99)
	assert.False(t, ok)
}

func TestClearKeepsCounter(t *testing.T) {
	c := New[item](3)
	collectN(c, 4)
	c.Clear()

	for id := int64(1); id <= 4; id++ {
		_, ok := c.Get(id)
		assert.False(t, ok, "id %d should be gone after clear", id)
	}
	assert.Equal(t, 0, c.Len())
	assert.Len(t, c.Segments(), 1)
	assert.Equal(t, int64(5), c.Collect(item{kind: "log"}))
}

func TestSplitEvictsOldestSegment(t *testing.T) {
	c := New[item](2)
	first := collectN(c, 3) // 1..3 in the oldest segment
	c.SplitAfterNavigation("http://localhost/a")
	second := collectN(c, 2) // 4..5

	var evicted []int64
	c.OnEvict(func(es []Entry[item]) {
		for _, e := range es {
			evicted = append(evicted, e.ID)
		}
	})
	c.SplitAfterNavigation("http://localhost/b")

	assert.Equal(t, first, evicted)
	for _, id := range first {
		_, ok := c.Get(id)
		assert.False(t, ok)
	}
	for _, id := range second {
		_, ok := c.Get(id)
		assert.True(t, ok)
	}

	segs := c.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, "http://localhost/b", segs[0].URL)
	assert.Equal(t, 0, segs[0].Count)
	assert.Equal(t, 2, segs[1].Count)
}

func TestDataCurrentSegmentOnly(t *testing.T) {
	c := New[item](3)
	collectN(c, 2)
	c.SplitAfterNavigation("")
	c.Collect(item{kind: "error"})

	page := c.Data(Query[item]{})
	assert.Equal(t, []int64{3}, entryIDs(page.Entries))

	page = c.Data(Query[item]{IncludePreserved: true})
	assert.Equal(t, []int64{3, 1, 2}, entryIDs(page.Entries))

	page = c.Data(Query[item]{IncludePreserved: true, Order: OldestFirst})
	assert.Equal(t, []int64{1, 2, 3}, entryIDs(page.Entries))
}

func TestPreservedSegmentsNewestFirst(t *testing.T) {
	c := New[item](3)
	collectN(c, 2)
	c.SplitAfterNavigation("http://localhost/b")
	collectN(c, 2)
	c.SplitAfterNavigation("http://localhost/c")
	collectN(c, 2)

	page := c.Data(Query[item]{IncludePreserved: true})
	assert.Equal(t, []int64{5, 6, 3, 4, 1, 2}, entryIDs(page.Entries))

	page = c.Data(Query[item]{IncludePreserved: true, Order: OldestFirst})
	assert.Equal(t, seq(1, 6), entryIDs(page.Entries))
}

func TestPaginationOf25(t *testing.T) {
	c := New[item](3)
	collectN(c, 25)

	p0 := c.Data(Query[item]{PageIdx: 0})
	assert.Equal(t, seq(1, 20), entryIDs(p0.Entries))
	assert.Equal(t, 25, p0.Total)
	require.NotNil(t, p0.NextPage)
	assert.Equal(t, 1, *p0.NextPage)
	assert.Nil(t, p0.PrevPage)
	assert.Equal(t, 1, p0.Start)
	assert.Equal(t, 20, p0.End)
	assert.Equal(t, 2, p0.TotalPages)

	p1 := c.Data(Query[item]{PageIdx: 1})
	assert.Equal(t, seq(21, 25), entryIDs(p1.Entries))
	assert.Nil(t, p1.NextPage)
	require.NotNil(t, p1.PrevPage)
	assert.Equal(t, 0, *p1.PrevPage)
	assert.Equal(t, 21, p1.Start)
	assert.Equal(t, 25, p1.End)
}

func TestPageBeyondLastIsEmpty(t *testing.T) {
	c := New[item](3)
	collectN(c, 25)

	p := c.Data(Query[item]{PageIdx: 7, PageSize: 10})
	assert.Empty(t, p.Entries)
	assert.NotNil(t, p.Entries)
	assert.Equal(t, 25, p.Total)
	assert.Nil(t, p.NextPage)
	require.NotNil(t, p.PrevPage)
	assert.Equal(t, 2, *p.PrevPage)
	assert.Equal(t, 0, p.Start)
}

func TestHugePageIndexIsEmpty(t *testing.T) {
	c := New[item](3)
	collectN(c, 5)

	p := c.Data(Query[item]{PageIdx: 1 << 62, PageSize: 3})
	assert.Empty(t, p.Entries)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 2, p.TotalPages)
	assert.Nil(t, p.NextPage)
	require.NotNil(t, p.PrevPage)
	assert.Equal(t, 1, *p.PrevPage)

	p = c.Data(Query[item]{PageIdx: 1, PageSize: int(^uint(0) >> 1)})
	assert.Empty(t, p.Entries)
	assert.Equal(t, 1, p.TotalPages)

	p = c.Data(Query[item]{PageSize: int(^uint(0) >> 1)})
	assert.Equal(t, seq(1, 5), entryIDs(p.Entries))
	assert.Equal(t, 5, p.End)
}

func TestEmptyCollectorPage(t *testing.T) {
	c := New[item](3)
	p := c.Data(Query[item]{PageIdx: -1})
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.PageIdx)
	assert.Nil(t, p.NextPage)
	assert.Nil(t, p.PrevPage)
}

func TestFiltersCompose(t *testing.T) {
	c := New[item](3)
	c.Collect(item{kind: "log", n: 1})
	c.Collect(item{kind: "error", n: 2})
	c.Collect(item{kind: "error", n: 3})
	c.Collect(item{kind: "warning", n: 4})

	even := Filter[item](func(e Entry[item]) bool { return e.Item.n%2 == 0 })
	p := c.Data(Query[item]{Filter: All(TypeIn[item]("error", "warning"), even, nil)})
	assert.Equal(t, []int64{2, 4}, entryIDs(p.Entries))
	assert.Equal(t, 2, p.Total)

	assert.Nil(t, All[item]())
	assert.Nil(t, TypeIn[item]())
}

func TestUpdateRetagsEntry(t *testing.T) {
	c := New[item](3)
	id := c.Collect(item{kind: "pending"})
	ok := c.Update(id, func(i *item) { i.kind = "done" })
	require.True(t, ok)

	e, _ := c.Get(id)
	assert.Equal(t, "done", e.Type)
	assert.False(t, c.Update(42, func(*item) {}))
}

func TestConcurrentCollectAndRead(t *testing.T) {
	c := New[item](2)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Collect(item{kind: "log"})
				if i%50 == 0 {
					c.SplitAfterNavigation("")
				}
				_ = c.Data(Query[item]{IncludePreserved: true, PageSize: 5})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), c.LastID())
}
