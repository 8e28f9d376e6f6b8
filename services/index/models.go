package index

import (
	"time"

	"github.com/docsignal/docsignal/services/progress"
)

type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsText  bool
}

const (
	fastTierMaxBytes   = 256 * 1024
	mediumTierMaxBytes = 2 * 1024 * 1024
)

// tierFor buckets a file into an indexing priority group. Small text files
// index first so searches become useful quickly; large text files follow;
// binary files (name-only indexing) and anything oversized go last.
func tierFor(file FileInfo) progress.Tier {
	if !file.IsText {
		return progress.TierSlow
	}
	if file.Size <= fastTierMaxBytes {
		return progress.TierFast
	}
	if file.Size <= mediumTierMaxBytes {
		return progress.TierMedium
	}
	return progress.TierSlow
}

// splitByTier partitions files into the fixed fast, medium, slow order.
func splitByTier(files []FileInfo) map[progress.Tier][]FileInfo {
	tiers := make(map[progress.Tier][]FileInfo, 3)
	for _, file := range files {
		tier := tierFor(file)
		tiers[tier] = append(tiers[tier], file)
	}
	return tiers
}
