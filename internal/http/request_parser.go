package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ledger/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body into dst.
// Any malformed input is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return core.Validationf("content type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return core.Validationf("request body must contain a single JSON object")
	}
	return nil
}

func bodyError(err error) error {
	var domain *core.Error
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &domain):
		return err
	case errors.Is(err, io.EOF):
		return core.Validationf("request body is empty")
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return core.Validationf("malformed JSON body")
	case errors.As(err, &typeErr):
		return core.Validationf("invalid value for field %q", typeErr.Field)
	case errors.As(err, &tooLarge):
		return core.Validationf("request body too large")
	default:
		return core.Validationf("invalid request body: %v", err)
	}
}

// pathID reads the {id} route variable. The route pattern guarantees digits;
// ids that overflow cannot exist.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NotFoundf("resource not found")
	}
	return id, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads the required month and year query parameters.
func ParseMonthParams(query url.Values) (MonthParams, error) {
	month, err := requiredInt(query, "month")
	if err != nil {
		return MonthParams{}, err
	}
	year, err := requiredInt(query, "year")
	if err != nil {
		return MonthParams{}, err
	}
	return MonthParams{Year: year, Month: month}, nil
}

func requiredInt(query url.Values, key string) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, core.Validationf("month and year are required")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Validationf("%s must be an integer", key)
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
