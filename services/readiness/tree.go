package readiness

import (
	"sort"
	"strings"
)

// FileNode is a single document in the tree snapshot fetched from the file
// record store. Snapshots are replaced wholesale on refresh, never patched.
type FileNode struct {
	Path      string
	Name      string
	Status    FileStatus
	CharCount *int64
}

// FolderNode is a directory in the snapshot. A folder's identity is its path
// from the root; sibling names are unique. Expanded is owned here explicitly
// rather than being inferred from whatever the UI last rendered.
type FolderNode struct {
	Name       string
	Files      []*FileNode
	Subfolders map[string]*FolderNode
	Expanded   bool
}

// Record is the stored per-file state the tree is built from.
type Record struct {
	Status    FileStatus
	CharCount *int64
}

// BuildTree assembles a folder tree from a flat path-to-record map. Path
// segments are separated by '/'; the leading segment of absolute paths is
// the empty string and is skipped.
func BuildTree(records map[string]Record) *FolderNode {
	root := &FolderNode{Subfolders: map[string]*FolderNode{}, Expanded: true}

	for path, record := range records {
		segments := strings.Split(path, "/")
		folder := root
		for _, segment := range segments[:len(segments)-1] {
			if segment == "" {
				continue
			}
			child, ok := folder.Subfolders[segment]
			if !ok {
				child = &FolderNode{Name: segment, Subfolders: map[string]*FolderNode{}}
				folder.Subfolders[segment] = child
			}
			folder = child
		}
		folder.Files = append(folder.Files, &FileNode{
			Path:      path,
			Name:      segments[len(segments)-1],
			Status:    record.Status,
			CharCount: record.CharCount,
		})
	}

	return root
}

// Snapshot pairs a tree with the search state needed to derive indicators.
type Snapshot struct {
	Root            *FolderNode
	matchedPaths    map[string]struct{}
	searchPerformed bool
}

func NewSnapshot(root *FolderNode, matchedPaths map[string]struct{}, searchPerformed bool) *Snapshot {
	return &Snapshot{
		Root:            root,
		matchedPaths:    matchedPaths,
		searchPerformed: searchPerformed,
	}
}

func (s *Snapshot) FileIndicator(file *FileNode) Indicator {
	_, hasMatch := s.matchedPaths[file.Path]
	return Classify(file.Status, file.CharCount, hasMatch, s.searchPerformed)
}

// FolderIndicator aggregates bottom-up: each subfolder's own aggregated
// indicator is one of the child indicators fed to its parent.
func (s *Snapshot) FolderIndicator(folder *FolderNode) Indicator {
	children := make([]Indicator, 0, len(folder.Files)+len(folder.Subfolders))
	for _, file := range folder.Files {
		children = append(children, s.FileIndicator(file))
	}
	for _, subfolder := range folder.Subfolders {
		children = append(children, s.FolderIndicator(subfolder))
	}
	return Aggregate(children)
}

// Entry is a listed child of a folder, annotated for display.
type Entry struct {
	Name      string
	Path      string
	IsDir     bool
	Indicator Indicator
	Priority  int
}

// SortedEntries lists a folder's children ordered by sort priority
// (descending), ties broken by name.
func (s *Snapshot) SortedEntries(folder *FolderNode) []Entry {
	entries := make([]Entry, 0, len(folder.Files)+len(folder.Subfolders))
	for _, file := range folder.Files {
		indicator := s.FileIndicator(file)
		entries = append(entries, Entry{
			Name:      file.Name,
			Path:      file.Path,
			Indicator: indicator,
			Priority:  SortPriority(indicator),
		})
	}
	for name, subfolder := range folder.Subfolders {
		indicator := s.FolderIndicator(subfolder)
		entries = append(entries, Entry{
			Name:      name,
			IsDir:     true,
			Indicator: indicator,
			Priority:  SortPriority(indicator),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})

	return entries
}
