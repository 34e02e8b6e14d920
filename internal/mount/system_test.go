package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMountTable(t *testing.T) {
	content := `proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
nas1:/vol/rw /tmp/nfscheck-123 nfs rw,vers=3,rsize=1048576,wsize=1048576,proto=tcp,timeo=600,retrans=2,hard 0 0

tmpfs /run tmpfs rw,nosuid,nodev 0 0`

	entries := ParseMountTable(content)
	require.Len(t, entries, 3)

	nfs := entries[1]
	assert.Equal(t, "nas1:/vol/rw", nfs.Source)
	assert.Equal(t, "/tmp/nfscheck-123", nfs.Target)
	assert.Equal(t, "nfs", nfs.FSType)
	assert.True(t, nfs.HasOption("vers=3"))
	assert.True(t, nfs.HasOption("proto=tcp"))
	assert.True(t, nfs.HasOption("hard"))
	assert.False(t, nfs.HasOption("proto=udp"))
}

func TestParseMountTable_ToleratesExtraFields(t *testing.T) {
	// Some systems emit more than the classic six columns; anything past
	// the options field must be ignored, not treated as a parse error.
	content := "nas1:/vol/a /mnt/a nfs ro,vers=3 0 0 extra fields here"

	entries := ParseMountTable(content)
	require.Len(t, entries, 1)
	assert.Equal(t, "/mnt/a", entries[0].Target)
	assert.True(t, entries[0].HasOption("ro"))
}

func TestParseMountTable_SkipsShortLines(t *testing.T) {
	content := "garbage\n\nnas1:/vol/a /mnt/a nfs rw 0 0\nshort line\n"

	entries := ParseMountTable(content)
	require.Len(t, entries, 1)
	assert.Equal(t, "/mnt/a", entries[0].Target)
}

func TestFindTarget(t *testing.T) {
	entries := []Entry{
		{Source: "a", Target: "/mnt/a"},
		{Source: "b", Target: "/mnt/b"},
	}

	e, ok := FindTarget(entries, "/mnt/b")
	assert.True(t, ok)
	assert.Equal(t, "b", e.Source)

	_, ok = FindTarget(entries, "/mnt/c")
	assert.False(t, ok)
}
