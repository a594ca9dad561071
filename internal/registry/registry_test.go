package registry

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type colors struct {
	Hex   []string `json:"hex"`
	Count int      `json:"count"`
}

func (c colors) ToMap() map[string]any {
	return map[string]any{"hex": c.Hex, "count": c.Count}
}

type label struct {
	Name string `json:"name"`
}

func (l *label) ToMap() map[string]any {
	return map[string]any{"name": l.Name}
}

func TestValidateToolID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid alphanumeric", "extract", false},
		{"valid with hyphen", "extract-colors", false},
		{"valid with underscore", "extract_seed_colors", false},
		{"valid with dot", "palette.v2", false},
		{"valid mixed", "Refine-Palette_2.v1", false},
		{"empty", "", true},
		{"starts with hyphen", "-extract", true},
		{"starts with dot", ".extract", true},
		{"dotdot", "..", true},
		{"contains slash", "palette/refine", true},
		{"contains space", "refine palette", true},
		{"too long", strings.Repeat("a", maxToolIDLen+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToolID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToolID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	r := New()

	require.NoError(t, Register(r, "extract", StructDecoder[colors]()))
	assert.True(t, r.Has("extract"))
	assert.False(t, r.Has("refine"))
	assert.Equal(t, []string{"extract"}, r.ToolIDs())

	typ, err := r.Type("extract")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[colors](), typ)

	assert.ErrorIs(t, Register(r, "bad id", StructDecoder[colors]()), ErrInvalidToolID)
	assert.ErrorIs(t, Register[colors](r, "nil", nil), ErrNilDecoder)
}

func TestRegister_Overwrites(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "extract", StructDecoder[colors]()))
	require.NoError(t, Register(r, "extract", func(raw map[string]any, round int) (*label, error) {
		return &label{Name: "second"}, nil
	}))

	typ, err := r.Type("extract")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[*label](), typ)

	out, err := r.Create("extract", map[string]any{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "second", MustAs[*label](out).Name)
}

func TestMustRegister_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustRegister(New(), "", StructDecoder[colors]())
	})
}

func TestCreate(t *testing.T) {
	r := New()
	MustRegister(r, "extract", StructDecoder[colors]())

	out, err := r.Create("extract", map[string]any{"hex": []any{"#000000"}, "count": "1"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "extract", out.ToolID())
	assert.Equal(t, reflect.TypeFor[colors](), out.Type())
	assert.True(t, out.HasValue())

	c, err := As[colors](out)
	require.NoError(t, err)
	assert.Equal(t, []string{"#000000"}, c.Hex)
	assert.Equal(t, 1, c.Count, "weakly typed input")
}

func TestCreate_Unregistered(t *testing.T) {
	r := New()

	out, err := r.Create("missing", map[string]any{"hex": []any{}}, 0)

	assert.ErrorIs(t, err, ErrUnregistered)
	assert.False(t, out.HasValue())
	assert.Nil(t, out.Type())

	_, err = r.Type("missing")
	assert.ErrorIs(t, err, ErrUnregistered)
}

func TestCreate_DecoderFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		decoder Decoder[*label]
		wantErr error
	}{
		{
			name: "decoder error",
			decoder: func(raw map[string]any, round int) (*label, error) {
				return nil, boom
			},
			wantErr: boom,
		},
		{
			name: "decoder panic",
			decoder: func(raw map[string]any, round int) (*label, error) {
				panic("unexpected shape")
			},
		},
		{
			name: "typed nil output",
			decoder: func(raw map[string]any, round int) (*label, error) {
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			MustRegister(r, "label", tt.decoder)

			out, err := r.Create("label", map[string]any{}, 2)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.False(t, out.HasValue())
		})
	}
}

func TestCreate_PassesRound(t *testing.T) {
	r := New()
	var got int
	MustRegister(r, "label", func(raw map[string]any, round int) (*label, error) {
		got = round
		return &label{}, nil
	})

	_, err := r.Create("label", map[string]any{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestAs(t *testing.T) {
	r := New()
	MustRegister(r, "extract", StructDecoder[colors]())
	out, err := r.Create("extract", map[string]any{"count": 2}, 0)
	require.NoError(t, err)

	_, err = As[*label](out)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Panics(t, func() { MustAs[*label](out) })

	empty := Empty("extract", reflect.TypeFor[colors]())
	_, err = As[colors](empty)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assert.Nil(t, empty.ToMap())
	assert.Equal(t, reflect.TypeFor[colors](), empty.Type())
}

func TestTyped_Rendering(t *testing.T) {
	r := New()
	MustRegister(r, "label", func(raw map[string]any, round int) (*label, error) {
		name, _ := raw["name"].(string)
		return &label{Name: name}, nil
	})
	out, err := r.Create("label", map[string]any{"name": "dusk"}, 0)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "dusk"}, out.ToMap())

	data, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"dusk"}`, string(data))

	assert.Contains(t, out.String(), "label")
	assert.Equal(t, "Typed(<none>)", Typed{}.String())
}

func TestStructDecoder_NilRaw(t *testing.T) {
	_, err := StructDecoder[colors]()(nil, 0)
	assert.Error(t, err)
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := New()
	MustRegister(r, "extract", StructDecoder[colors]())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create("extract", map[string]any{"count": 1}, 0)
			assert.NoError(t, err)
			assert.True(t, r.Has("extract"))
		}()
	}
	wg.Wait()
}
