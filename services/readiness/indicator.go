package readiness

// FileStatus is the backend's last-known state for a file, recorded at
// index/analysis time. It is independent of the currently active search.
type FileStatus string

const (
	StatusError            FileStatus = "error"
	StatusUnsupported      FileStatus = "unsupported"
	StatusContainsKeywords FileStatus = "contains_keywords"
	StatusNoKeywords       FileStatus = "no_keywords"
	StatusProcessing       FileStatus = "processing"
	StatusNotChecked       FileStatus = "not_checked"
)

// Indicator is the four-color readiness/relevance classification shown for
// every file and folder. It is always derived, never stored.
type Indicator string

const (
	Red    Indicator = "red"
	Yellow Indicator = "yellow"
	Green  Indicator = "green"
	Gray   Indicator = "gray"
)

// Classify derives a file's indicator from its index status, its extracted
// character count and the state of the active search. A nil charCount means
// the count is unknown, not zero.
//
// Unreadable or empty files are red no matter what the search says. Once a
// search has run, files split into green (matched) and yellow (indexed, no
// match). Before any search, indexable files stay gray.
func Classify(status FileStatus, charCount *int64, hasMatch bool, searchPerformed bool) Indicator {
	if status == StatusError || status == StatusUnsupported {
		return Red
	}
	if charCount != nil && *charCount == 0 {
		return Red
	}
	if searchPerformed {
		if hasMatch {
			return Green
		}
		return Yellow
	}
	return Gray
}

// Aggregate derives a folder's indicator from its children's indicators
// (files and already-aggregated subfolders alike). Precedence is independent
// of counts: one green child makes the folder green; otherwise one yellow
// child makes it yellow; red only when every child is red; gray covers
// everything else, including an empty folder.
func Aggregate(children []Indicator) Indicator {
	if len(children) == 0 {
		return Gray
	}

	allRed := true
	sawYellow := false
	for _, child := range children {
		switch child {
		case Green:
			return Green
		case Yellow:
			sawYellow = true
			allRed = false
		case Gray:
			allRed = false
		}
	}

	if sawYellow {
		return Yellow
	}
	if allRed {
		return Red
	}
	return Gray
}

// SortPriority orders indicators for listings: matches float to the top,
// broken entries sink to the bottom. Gray and yellow share a priority on
// purpose, since neither has demonstrated relevance nor irrelevance worth
// separating visually.
func SortPriority(indicator Indicator) int {
	switch indicator {
	case Green:
		return 3
	case Red:
		return 1
	default:
		return 2
	}
}
