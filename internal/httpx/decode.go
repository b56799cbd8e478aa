package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const maxBody = 1 << 20

// decode reads a JSON body into v and runs its validate tags. Errors wrap
// apperr.ErrInvalidInput.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !(optional && errors.Is(err, io.EOF)) {
		return apperr.Invalid("invalid json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Invalid("%v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}
