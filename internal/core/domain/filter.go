package domain

import "time"

// TimeWindow is a user-configured modification-time filter.
// A nil *TimeWindow means no filter was configured; a non-nil window with
// both bounds nil is an explicit "everything" filter.
type TimeWindow struct {
	// ModifiedAfter excludes items modified at or before this time.
	ModifiedAfter *time.Time

	// ModifiedBefore excludes items modified at or after this time.
	ModifiedBefore *time.Time
}

// FilterOrigin records where the effective lower bound came from.
type FilterOrigin int

const (
	// OriginNone means first run without a configured filter: fetch all.
	OriginNone FilterOrigin = iota

	// OriginConfigured means the configured filter decided the lower bound.
	OriginConfigured

	// OriginCheckpoint means the stored watermark decided the lower bound.
	OriginCheckpoint

	// OriginResume means an unfinished pagination is replayed with its original bound.
	OriginResume
)

// String returns a short name for logging.
func (o FilterOrigin) String() string {
	switch o {
	case OriginConfigured:
		return "configured"
	case OriginCheckpoint:
		return "checkpoint"
	case OriginResume:
		return "resume"
	default:
		return "none"
	}
}

// Filters are the effective predicates handed to a connector for one pagination.
type Filters struct {
	// ModifiedAfter is an exclusive lower bound on the source update time.
	ModifiedAfter *time.Time

	// ModifiedBefore is an exclusive upper bound on the source update time.
	ModifiedBefore *time.Time

	// Origin records where ModifiedAfter came from.
	Origin FilterOrigin
}

// Empty reports whether the window can never match anything.
func (f Filters) Empty() bool {
	return f.ModifiedAfter != nil && f.ModifiedBefore != nil && !f.ModifiedBefore.After(*f.ModifiedAfter)
}

// Matches reports whether t falls inside the window.
func (f Filters) Matches(t time.Time) bool {
	if f.ModifiedAfter != nil && !t.After(*f.ModifiedAfter) {
		return false
	}
	if f.ModifiedBefore != nil && !t.Before(*f.ModifiedBefore) {
		return false
	}
	return true
}

// MergeWindow combines a configured window with the stored checkpoint.
//
// For the lower bound the later of the configured filter and the checkpoint
// watermark wins, so an older configured filter never rewinds progress. An
// unfinished pagination replays its original bound. The upper bound is taken
// from the configuration as-is.
func MergeWindow(configured *TimeWindow, cp *Checkpoint) Filters {
	var f Filters
	if configured != nil {
		f.ModifiedBefore = configured.ModifiedBefore
		f.Origin = OriginConfigured
	}

	if cp.Resumable() {
		f.ModifiedAfter = cp.Since
		f.Origin = OriginResume
		return f
	}

	var after *time.Time
	if configured != nil && configured.ModifiedAfter != nil {
		t := *configured.ModifiedAfter
		after = &t
	}
	if cp != nil && !cp.Watermark.IsZero() && (after == nil || cp.Watermark.After(*after)) {
		t := cp.Watermark
		after = &t
		f.Origin = OriginCheckpoint
	}
	f.ModifiedAfter = after
	return f
}

// PageMode is how a connector addresses pages.
type PageMode int

const (
	// PageModeCursor follows an opaque next-page token.
	PageModeCursor PageMode = iota

	// PageModeOffset advances a numeric offset by the batch size.
	PageModeOffset
)

// String returns the mode name.
func (m PageMode) String() string {
	if m == PageModeOffset {
		return "offset"
	}
	return "cursor"
}

// PageStart is the position a page fetch starts at.
type PageStart struct {
	// Cursor is the opaque token in cursor mode. Empty means the first page.
	Cursor string

	// Offset is the item offset in offset mode.
	Offset int
}

// PageRequest is what the paginator hands to a connector.
type PageRequest struct {
	PageStart

	// Limit is the requested page size.
	Limit int

	// Filters are the effective predicates.
	Filters Filters
}

// RawPage is one page as returned by a connector.
type RawPage struct {
	// Items are the fetched payloads.
	Items []ExternalItem

	// NextCursor is the token of the following page in cursor mode. Empty when exhausted.
	NextCursor string

	// Total is the collection size in offset mode, or zero when unknown.
	Total int

	// Consumed is the number of source positions the page covered in offset
	// mode when the connector dropped entries it does not mirror. Zero means len(Items).
	Consumed int
}

// Covered returns the number of source positions the page covered.
func (p *RawPage) Covered() int {
	if p.Consumed > 0 {
		return p.Consumed
	}
	return len(p.Items)
}

// Page is one page as yielded by the paginator.
type Page struct {
	// Items are the fetched payloads.
	Items []ExternalItem

	// Start is the position this page was fetched from.
	Start PageStart

	// Next is the position of the following page. Zero when Last is true.
	Next PageStart

	// Last reports whether this was the final page.
	Last bool

	// Filters are the predicates the page was fetched with.
	Filters Filters
}
