package nativetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/native"
)

// RunDirectoryTests covers the directory stream.
func (suite *VolumeTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("ListEntries", suite.testListEntries)
	t.Run("EntryTypes", suite.testEntryTypes)
	t.Run("OpendirOnFile", suite.testOpendirOnFile)
	t.Run("EndIsSticky", suite.testEndIsSticky)
}

func (suite *VolumeTestSuite) testListEntries(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))

	const count = 50
	want := []string{".", ".."}
	for i := range count {
		name := "file-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
		writeFile(t, vol, "/d/"+name, name)
		want = append(want, name)
	}

	assert.ElementsMatch(t, want, listDir(t, vol, "/d"))
}

func (suite *VolumeTestSuite) testEntryTypes(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/d"), 0o755))
	succeeds(t)(vol.Mkdir(cs("/d/sub"), 0o755))
	writeFile(t, vol, "/d/file", "x")
	succeeds(t)(vol.Symlink(cs("file"), cs("/d/link")))

	fd := opened(t)(vol.Opendir(cs("/d")))
	defer fd.Close()

	types := map[string]uint8{}
	for {
		var ent native.Dirent
		ret, _ := fd.ReadDirent(&ent)
		if ret <= 0 {
			break
		}
		types[string(ent.Name)] = ent.Type
	}

	assert.EqualValues(t, native.DT_DIR, types["sub"])
	assert.EqualValues(t, native.DT_REG, types["file"])
	assert.EqualValues(t, native.DT_LNK, types["link"])
}

func (suite *VolumeTestSuite) testOpendirOnFile(t *testing.T) {
	vol := suite.NewVolume(t)
	writeFile(t, vol, "/f", "x")

	fd, err := vol.Opendir(cs("/f"))
	assert.Nil(t, fd)
	assert.Equal(t, unix.ENOTDIR, err)
}

func (suite *VolumeTestSuite) testEndIsSticky(t *testing.T) {
	vol := suite.NewVolume(t)
	succeeds(t)(vol.Mkdir(cs("/empty"), 0o755))

	fd := opened(t)(vol.Opendir(cs("/empty")))
	defer fd.Close()

	var ent native.Dirent
	for {
		ret, _ := fd.ReadDirent(&ent)
		if ret == 0 {
			break
		}
	}
	ret, _ := fd.ReadDirent(&ent)
	assert.Equal(t, 0, ret)
}
