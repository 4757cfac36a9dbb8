package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a free-text filter value that looks like SQL injection.
type InjectionCheckResult struct {
	ParamName   string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue runs libinjection over a single free-text value.
// Returns nil when the value is clean or empty.
//
//	CheckValue("search", "ransomware")             // nil
//	CheckValue("search", "' OR 1=1 --")            // Fingerprint "s&1c" or similar
func CheckValue(paramName, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		ParamName:   paramName,
		Fingerprint: string(fingerprint),
	}
}

// CheckValues checks every value and returns the failures ordered by parameter name.
func CheckValues(params map[string]string) []*InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if result := CheckValue(name, params[name]); result != nil {
			results = append(results, result)
		}
	}
	return results
}
