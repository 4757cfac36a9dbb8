package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMap_Scan_NeverFails(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"empty bytes", []byte("")},
		{"empty string", ""},
		{"malformed", []byte("{not json")},
		{"json null", []byte("null")},
		{"json array", []byte("[1,2,3]")},
		{"json scalar", "\"text\""},
		{"unexpected type", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m JSONMap
			err := m.Scan(tt.value)
			require.NoError(t, err)
			assert.NotNil(t, m)
			assert.Empty(t, m)
		})
	}
}

func TestJSONMap_Scan_Object(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"source":"google_drive","pages":3}`)))
	assert.Equal(t, "google_drive", m.String("source"))
	assert.Equal(t, float64(3), m["pages"])
}

func TestJSONMap_Value_EmptyIsNull(t *testing.T) {
	v, err := JSONMap{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var nilMap JSONMap
	v, err = nilMap.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = JSONMap{"ip": nil}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ip":null}`, string(v.([]byte)))
}

func TestJSONMap_MarshalJSON_NilIsObject(t *testing.T) {
	type wrapper struct {
		Metadata JSONMap `json:"metadata"`
	}
	b, err := json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata":{}}`, string(b))
}

func TestJSONStrings_Scan(t *testing.T) {
	var s JSONStrings
	require.NoError(t, s.Scan([]byte(`["ransomware","phishing"]`)))
	assert.Equal(t, JSONStrings{"ransomware", "phishing"}, s)

	require.NoError(t, s.Scan([]byte(`{"bad":true}`)))
	assert.Empty(t, s)

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	v, err := JSONStrings{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDocument_ProcessedExternally(t *testing.T) {
	assert.True(t, (&Document{Metadata: JSONMap{"source": "google_drive"}}).ProcessedExternally())
	assert.True(t, (&Document{Metadata: JSONMap{"processed_externally": true}}).ProcessedExternally())
	assert.False(t, (&Document{Metadata: JSONMap{"source": "upload"}}).ProcessedExternally())
	assert.False(t, (&Document{}).ProcessedExternally())
}

func TestPage_Normalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPerPage, p.PerPage)

	assert.Equal(t, MaxPerPage, Page{PerPage: 1000}.Normalize().PerPage)
	assert.Equal(t, 30, Page{Page: 3, PerPage: 15}.Offset())

	res := NewPageResult[int](nil, 31, Page{Page: 2, PerPage: 15})
	assert.NotNil(t, res.Items)
	assert.Equal(t, 3, res.LastPage)
	assert.Equal(t, 2, res.CurrentPage)
}
