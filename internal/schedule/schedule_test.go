package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ab = Snapshot{
	{Label: "Sched A", Link: "http://x/a.pdf"},
	{Label: "Sched B", Link: "http://x/b.docx"},
}

func TestNewSnapshotDedupFirstSeenWins(t *testing.T) {
	s := NewSnapshot([]Item{
		{Label: "A", Link: "http://x/a.pdf"},
		{Label: "no link", Link: "  "},
		{Label: "B", Link: "http://x/b.pdf"},
		{Label: "A again", Link: "http://x/a.pdf"},
	})
	require.Len(t, s, 2)
	assert.Equal(t, "A", s[0].Label)
	assert.Equal(t, []string{"http://x/a.pdf", "http://x/b.pdf"}, s.Links())
}

func TestFingerprintSameSequenceSameDigest(t *testing.T) {
	// Labels are display metadata and do not take part.
	relabeled := Snapshot{
		{Label: "other", Link: "http://x/a.pdf"},
		{Label: "names", Link: "http://x/b.docx"},
	}
	assert.Equal(t, Compute(ab), Compute(relabeled))
	assert.True(t, Compute(ab).Valid())
}

func TestFingerprintKnownDigest(t *testing.T) {
	assert.Equal(t, Fingerprint("0ca83e626a4786301556fb7b19f14aa6"), Compute(ab))
	assert.Equal(t, Fingerprint("d41d8cd98f00b204e9800998ecf8427e"), Compute(nil))
}

func TestFingerprintDiffersOnOrderOrMembership(t *testing.T) {
	swapped := Snapshot{ab[1], ab[0]}
	fewer := Snapshot{ab[0]}
	more := append(Snapshot{}, ab...)
	more = append(more, Item{Label: "C", Link: "http://x/c.pdf"})

	base := Compute(ab)
	assert.NotEqual(t, base, Compute(swapped))
	assert.NotEqual(t, base, Compute(fewer))
	assert.NotEqual(t, base, Compute(more))
}

func TestFingerprintSortLinks(t *testing.T) {
	swapped := Snapshot{ab[1], ab[0]}
	opt := Options{SortLinks: true}
	assert.Equal(t, ComputeWith(ab, opt), ComputeWith(swapped, opt))
}

func TestFingerprintValid(t *testing.T) {
	assert.False(t, Fingerprint("").Valid())
	assert.False(t, Fingerprint("xyz").Valid())
	assert.True(t, Fingerprint("").IsZero())
	assert.Equal(t, "d41d8cd9", Compute(nil).Short())
}

func TestDocumentClassifier(t *testing.T) {
	c := NewDocumentClassifier(nil)
	cases := []struct {
		link string
		want bool
	}{
		{"http://x/a.pdf", true},
		{"http://x/b.DOCX", true},
		{"http://x/c.xlsx?download=1", true},
		{"http://x/page.html", false},
		{"http://x/dir/", false},
		{"http://x/noext", false},
	}
	for _, tc := range cases {
		t.Run(tc.link, func(t *testing.T) {
			assert.Equal(t, tc.want, c.IsDocument(tc.link))
		})
	}

	custom := NewDocumentClassifier([]string{".PDF"})
	assert.True(t, custom.IsDocument("http://x/a.pdf"))
	assert.False(t, custom.IsDocument("http://x/b.docx"))
	assert.Equal(t, []Item{ab[0]}, custom.Documents(ab))
}
