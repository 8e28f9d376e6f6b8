package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docsignal/docsignal/services/progress"
)

var tierForTestCases = []struct {
	name     string
	file     FileInfo
	expected progress.Tier
}{
	{
		name:     "SmallTextFileIsFast",
		file:     FileInfo{Path: "/docs/note.txt", Size: 1024, IsText: true},
		expected: progress.TierFast,
	},
	{
		name:     "FastBoundaryIsInclusive",
		file:     FileInfo{Path: "/docs/note.txt", Size: fastTierMaxBytes, IsText: true},
		expected: progress.TierFast,
	},
	{
		name:     "MediumTextFile",
		file:     FileInfo{Path: "/docs/report.md", Size: fastTierMaxBytes + 1, IsText: true},
		expected: progress.TierMedium,
	},
	{
		name:     "MediumBoundaryIsInclusive",
		file:     FileInfo{Path: "/docs/report.md", Size: mediumTierMaxBytes, IsText: true},
		expected: progress.TierMedium,
	},
	{
		name:     "OversizedTextFileIsSlow",
		file:     FileInfo{Path: "/docs/dump.log", Size: mediumTierMaxBytes + 1, IsText: true},
		expected: progress.TierSlow,
	},
	{
		name:     "BinaryFileIsSlowRegardlessOfSize",
		file:     FileInfo{Path: "/docs/tiny.iso", Size: 10, IsText: false},
		expected: progress.TierSlow,
	},
}

func TestTierFor(t *testing.T) {
	assert := require.New(t)
	for _, testCase := range tierForTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(testCase.expected, tierFor(testCase.file), testCase.name)
		})
	}
}

func TestSplitByTier(t *testing.T) {
	assert := require.New(t)

	files := []FileInfo{
		{Path: "/a.txt", Size: 100, IsText: true},
		{Path: "/b.txt", Size: 200, IsText: true},
		{Path: "/c.md", Size: fastTierMaxBytes * 2, IsText: true},
		{Path: "/d.iso", Size: 1, IsText: false},
	}

	tiers := splitByTier(files)
	assert.Len(tiers[progress.TierFast], 2)
	assert.Len(tiers[progress.TierMedium], 1)
	assert.Len(tiers[progress.TierSlow], 1)
	assert.Equal("/d.iso", tiers[progress.TierSlow][0].Path)
}

func TestIsTextFile(t *testing.T) {
	assert := require.New(t)

	assert.True(isTextFile("/docs/readme.MD"))
	assert.True(isTextFile("/docs/data.csv"))
	assert.False(isTextFile("/docs/photo.jpg"))
	assert.False(isTextFile("/docs/no-extension"))
}

func TestExtractDocument(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	assert.NoError(os.WriteFile(path, []byte("héllo"), 0o600))

	doc, charCount, err := extractDocument(FileInfo{
		Path: path, Name: "note.txt", Size: 6, IsText: true,
	})
	assert.NoError(err)
	assert.Equal(path, doc.ID)
	assert.Equal("héllo", doc.Content)
	assert.NotNil(charCount)
	assert.Equal(int64(5), *charCount, "count is in runes, not bytes")
}

func TestExtractDocumentBinary(t *testing.T) {
	assert := require.New(t)

	doc, charCount, err := extractDocument(FileInfo{
		Path: "/docs/image.iso", Name: "image.iso", Size: 42, IsText: false,
	})
	assert.NoError(err)
	assert.Equal("", doc.Content, "binary files are indexed by name only")
	assert.Nil(charCount, "unmeasured files carry a nil count, not zero")
}

func TestExtractDocumentEmptyFile(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	assert.NoError(os.WriteFile(path, nil, 0o600))

	_, charCount, err := extractDocument(FileInfo{
		Path: path, Name: "empty.txt", Size: 0, IsText: true,
	})
	assert.NoError(err)
	assert.NotNil(charCount)
	assert.Equal(int64(0), *charCount)
}
