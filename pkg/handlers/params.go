package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/sql"
)

// ParseResourceID extracts and validates the {id} path parameter.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing a 404, since an unparseable id can never match a row).
func ParseResourceID(w http.ResponseWriter, r *http.Request, notFound string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, logger, http.StatusNotFound, "not_found", notFound)
		return uuid.Nil, false
	}
	return id, true
}

// parsePage reads page and per_page from the query string. Bad values fall back to defaults.
func parsePage(r *http.Request) models.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return models.Page{Page: page, PerPage: perPage}.Normalize()
}

// listQuery holds the raw filter parameters of a list request.
type listQuery struct {
	values map[string]string
}

// readListQuery trims the named query parameters and screens them for SQL injection.
// It writes a 422 and returns false when any value is rejected.
func readListQuery(w http.ResponseWriter, r *http.Request, logger *zap.Logger, names ...string) (listQuery, bool) {
	q := r.URL.Query()
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			values[name] = v
		}
	}

	if results := sql.CheckValues(values); len(results) > 0 {
		ve := apperrors.NewValidationError()
		for _, res := range results {
			logger.Warn("Rejected suspicious filter value",
				zap.String("param", res.ParamName),
				zap.String("fingerprint", res.Fingerprint),
				zap.String("path", r.URL.Path))
			ve.Add(res.ParamName, "The "+res.ParamName+" filter contains disallowed characters.")
		}
		if err := writeValidationError(w, ve); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return listQuery{}, false
	}
	return listQuery{values: values}, true
}

func (q listQuery) get(name string) string {
	return q.values[name]
}

// intPtr returns the named value as an int, or nil when absent or not an integer.
func (q listQuery) intPtr(name string) *int {
	v, ok := q.values[name]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// uuidPtr returns the named value as a UUID, or nil when absent or malformed.
func (q listQuery) uuidPtr(name string) *uuid.UUID {
	v, ok := q.values[name]
	if !ok {
		return nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil
	}
	return &id
}
