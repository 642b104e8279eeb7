package native

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCString(t *testing.T) {
	tests := []string{"", "/", "/dir/file.txt", "relative/path", "üñîçødé", "a b\tc"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			c, err := NewCString(in)
			require.NoError(t, err)
			assert.Equal(t, append([]byte(in), 0), []byte(c), "marshalled form is input plus terminator")
			assert.Equal(t, in, c.String())
		})
	}
}

func TestNewCStringRejectsInteriorNul(t *testing.T) {
	tests := []struct {
		in  string
		pos int
	}{
		{"\x00", 0},
		{"/a\x00b", 2},
		{"abc\x00", 3},
	}

	for _, tt := range tests {
		_, err := NewCString(tt.in)
		var nulErr *NulError
		require.True(t, errors.As(err, &nulErr), "input %q", tt.in)
		assert.Equal(t, tt.pos, nulErr.Pos)
		assert.Contains(t, nulErr.Error(), "position")
	}
}

func TestGoString(t *testing.T) {
	s, err := GoString([]byte("/vol/dir\x00garbage"))
	require.NoError(t, err)
	assert.Equal(t, "/vol/dir", s)

	_, err = GoString([]byte("no terminator"))
	assert.ErrorIs(t, err, ErrNotTerminated)
}

func TestPutString(t *testing.T) {
	buf := make([]byte, 4)
	assert.True(t, PutString(buf, "abc"))
	assert.Equal(t, []byte("abc\x00"), buf)
	assert.False(t, PutString(buf, "abcd"))
}

func TestErrnoOf(t *testing.T) {
	_, err := Fail(2)
	assert.EqualValues(t, 2, ErrnoOf(err))
	assert.EqualValues(t, 5, ErrnoOf(nil))
	assert.EqualValues(t, 5, ErrnoOf(errors.New("foreign")))
}
