package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/jsonutil"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// decodeInt reads an integer sent as a number or numeric string.
// Absent or null gives nil. Anything else that is not an integer gives 0,
// which every range check downstream rejects.
func decodeInt(raw json.RawMessage) *int {
	if isNull(raw) {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(jsonutil.FlexibleStringValue(raw)))
	if err != nil {
		n = 0
	}
	return &n
}

// decodeObject reads an optional JSON object field into a JSONMap.
// Absent or null gives nil; a non-object value is recorded on v.
func decodeObject(v *apperrors.ValidationError, field string, raw json.RawMessage) models.JSONMap {
	if isNull(raw) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		v.Add(field, "The "+field+" field must be an object.")
		return nil
	}
	return models.JSONMap(m)
}
