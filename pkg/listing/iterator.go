package listing

import "context"

// Iterator walks a listing lazily, one page at a time. It is forward-only;
// call Lister.Iterate again to start over.
type Iterator struct {
	lister *Lister
	first  Cursor
	next   *Cursor
	buf    []Entry
	cur    Entry
	err    error
	pages  int
	done   bool
}

// Iterate returns an iterator over every entry under prefix.
func (l *Lister) Iterate(prefix, delimiter string, pageSize int) *Iterator {
	return &Iterator{
		lister: l,
		first:  Cursor{Prefix: prefix, Delimiter: delimiter, MaxKeys: l.PageSize(pageSize)},
	}
}

// Next advances to the next entry, fetching pages as needed. It returns
// false when the listing is exhausted or a fetch failed; check Err.
func (it *Iterator) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		var page *Page
		if it.pages == 0 {
			page, it.err = it.lister.fetch(ctx, "listObjects", it.first)
		} else {
			page, it.err = it.lister.Continue(ctx, *it.next)
		}
		if it.err != nil {
			return false
		}
		it.pages++
		it.buf = page.Entries()
		it.next = page.Next
		it.done = page.Next == nil
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Entry returns the current entry.
func (it *Iterator) Entry() Entry {
	return it.cur
}

// Err returns the first fetch error.
func (it *Iterator) Err() error {
	return it.err
}

// Pages returns how many pages have been fetched.
func (it *Iterator) Pages() int {
	return it.pages
}
