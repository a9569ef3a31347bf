package capture

// debouncer turns a stream of poll results into taps. A tag held in the
// field produces one tap; it can tap again only after a poll saw the field
// empty or a different tag.
type debouncer struct {
	last string
}

func (d *debouncer) observe(tag string, present bool) bool {
	if !present {
		d.last = ""
		return false
	}
	if tag == d.last {
		return false
	}
	d.last = tag
	return true
}
