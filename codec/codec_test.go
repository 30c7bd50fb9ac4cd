package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Class uint32            `json:"class"`
	Attrs map[string]string `json:"attrs"`
	Refs  []uint64          `json:"refs"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
	assert.Equal(t, []string{"go-json", "json"}, Names())
}

type upper struct{ JSON }

func (upper) Name() string { return "upper-json" }

func TestRegister(t *testing.T) {
	require.NoError(t, Register(upper{}))
	c, ok := ByName("upper-json")
	require.True(t, ok)
	assert.Equal(t, "upper-json", c.Name())
	require.Error(t, Register(upper{}))
	require.Error(t, Register(GoJSON{}))
}

func TestSameBytes(t *testing.T) {
	in := map[string]any{"html": "<a & b>", "n": 1}
	assert.Equal(t, MustMarshal(GoJSON{}, in), MustMarshal(JSON{}, in))
	assert.Equal(t, `{"html":"<a & b>","n":1}`, string(MustMarshal(JSON{}, in)))
}

func TestCodecsAgree(t *testing.T) {
	in := record{Class: 7, Attrs: map[string]string{"name": "ada"}, Refs: []uint64{1, 2}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data := MustMarshal(c, in)

			// Both codecs read each other's output.
			for _, other := range []Codec{JSON{}, GoJSON{}} {
				var out record
				require.NoError(t, other.Unmarshal(data, &out))
				assert.Equal(t, in, out)
			}
		})
	}
}

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
