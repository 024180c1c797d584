package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesKeyOrderAndNumbers(t *testing.T) {
	t.Parallel()

	in := `{"zeta":1.50,"alpha":{"b":true,"a":null},"list":[3,"x",1e3]}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)

	obj, ok := v.Object()
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "list"}, obj.Keys())

	n, ok := obj.Get("zeta")
	require.True(t, ok)
	num, ok := n.Num()
	require.True(t, ok)
	assert.Equal(t, "1.50", string(num))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestParse_RejectsTrailingData(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"a":`))
	require.Error(t, err)
}

func TestValue_ZeroIsNull(t *testing.T) {
	t.Parallel()

	var v Value
	assert.True(t, v.IsNull())
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestValue_UnmarshalInStruct(t *testing.T) {
	t.Parallel()

	var doc struct {
		Name string `json:"name"`
		Data Value  `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","data":{"b":2,"a":1}}`), &doc))
	obj, ok := doc.Data.Object()
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, obj.Keys())
}

func TestValue_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", String("abc"), "abc"},
		{"int", Int(42), "42"},
		{"float literal", Number("3.10"), "3.10"},
		{"float", Float(2.5), "2.5"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"null", Null(), ""},
		{"array", Array(Int(1), String("a")), `[1,"a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.v.Text())
		})
	}
}

func TestValue_IsBlank(t *testing.T) {
	t.Parallel()

	assert.True(t, Null().IsBlank())
	assert.True(t, String("").IsBlank())
	assert.True(t, Array().IsBlank())
	assert.True(t, FromObject(nil).IsBlank())
	assert.False(t, String(" ").IsBlank())
	assert.False(t, Int(0).IsBlank())
	assert.False(t, Bool(false).IsBlank())
}

func TestValue_EqualIgnoresMemberOrder(t *testing.T) {
	t.Parallel()

	a, err := Parse([]byte(`{"x":1,"y":[1,2]}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{"y":[1,2],"x":1}`))
	require.NoError(t, err)
	c, err := Parse([]byte(`{"y":[2,1],"x":1}`))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Int(1).Equal(String("1")))
}

func TestValue_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig, err := Parse([]byte(`{"a":{"b":1}}`))
	require.NoError(t, err)
	cp := orig.Clone()

	inner, _ := cp.Get("a")
	innerObj, _ := inner.Object()
	innerObj.Set("b", Int(2))

	got, ok := orig.Lookup("a", "b")
	require.True(t, ok)
	assert.Equal(t, "1", got.Text())
}

func TestObject_SetKeepsPositionAndDelete(t *testing.T) {
	t.Parallel()

	o := NewObject()
	o.Set("a", Int(1))
	o.Set("b", Int(2))
	o.Set("a", Int(3))
	assert.Equal(t, []string{"a", "b"}, o.Keys())

	o.Delete("a")
	assert.Equal(t, []string{"b"}, o.Keys())
	assert.False(t, o.Has("a"))

	var nilObj *Object
	assert.Equal(t, 0, nilObj.Len())
	_, ok := nilObj.Get("x")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	v, err := Encode(map[string]any{"n": 1, "s": "x"})
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())
	s, ok := v.Get("s")
	require.True(t, ok)
	assert.Equal(t, "x", s.Text())

	_, err = Encode(make(chan int))
	require.Error(t, err)
}
