package httpkit

import (
	"encoding/json"
	"io"
	"net/http"

	"cutline/internal/pkg/errors"
)

// MaxBodyBytes caps request bodies read by the decoders.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v and rejects unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	return decode(r, v, true)
}

// DecodeJSONLenient decodes the request body into v, ignoring unknown fields.
// Used for payloads produced by systems we do not own.
func DecodeJSONLenient(r *http.Request, v any) error {
	return decode(r, v, false)
}

func decode(r *http.Request, v any, strict bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.New(errors.CodeBadRequest, "request body is empty")
		}
		return errors.WrapWithCode(err, errors.CodeBadRequest, "httpkit.decode", "malformed JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
