package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name            string
		value           string
		expectInjection bool
	}{
		{"empty", "", false},
		{"threat type", "ransomware", false},
		{"multi-word search", "lateral movement via smb", false},
		{"ip address", "203.0.113.7", false},
		{"apostrophe in name", "O'Brien", false},
		{"tautology", "' OR '1'='1", true},
		{"drop table", "'; DROP TABLE threats--", true},
		{"union select", "1 UNION SELECT * FROM passwords", true},
		{"comment truncation", "admin'--", true},
		{"numeric tautology", "' OR 1=1--", true},
		{"time based", "1' AND SLEEP(5)--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValue("search", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, "search", result.ParamName)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckValues(t *testing.T) {
	results := CheckValues(map[string]string{
		"type":   "phishing",
		"search": "' OR 1=1--",
		"status": "detected",
		"alpha":  "'; DROP TABLE threats--",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].ParamName)
	assert.Equal(t, "search", results[1].ParamName)

	assert.Empty(t, CheckValues(map[string]string{"search": "phishing kit"}))
	assert.Empty(t, CheckValues(nil))
}
