package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, 24, s.Len())

	kanpur, ok := s.Get("Kanpur")
	require.True(t, ok)
	assert.Equal(t, 26.512, kanpur.Lat)
	assert.Equal(t, 80.231, kanpur.Lon)

	_, ok = s.Get("Nowhere")
	assert.False(t, ok)

	assert.Equal(t, "Chiayi", s.Names()[0])
	assert.Equal(t, "Anmyon", s.SortedNames()[0])
}

func TestNewSet(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		_, err := NewSet([]Station{{Name: "A", Lat: 1, Lon: 1}, {Name: "A", Lat: 2, Lon: 2}})
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewSet([]Station{{Lat: 1, Lon: 1}})
		assert.Error(t, err)
	})

	t.Run("bad latitude", func(t *testing.T) {
		_, err := NewSet([]Station{{Name: "A", Lat: 91, Lon: 1}})
		assert.Error(t, err)
	})

	t.Run("copy on input and output", func(t *testing.T) {
		in := []Station{{Name: "A", Lat: 1, Lon: 1}}
		s, err := NewSet(in)
		require.NoError(t, err)
		in[0].Name = "B"
		out := s.All()
		out[0].Lat = 50
		st, ok := s.Get("A")
		require.True(t, ok)
		assert.Equal(t, 1.0, st.Lat)
	})
}
