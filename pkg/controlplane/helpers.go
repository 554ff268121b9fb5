package controlplane

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/crtx-sg/iotix/pkg/httputil"
	"github.com/crtx-sg/iotix/pkg/ierr"
)

// maxRequestBodySize bounds any request body this server accepts, the
// same 10 MiB ceiling the teacher's control API enforces.
const maxRequestBodySize = 10 * 1024 * 1024

func limitedBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
}

func decodeJSONBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalJSONBody decodes v from the request body, treating an
// empty body as "use every zero-value default" rather than an error
// (group launch/dropout configs are normalized against their zero values,
// so a caller may omit the body entirely).
func decodeOptionalJSONBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

// writeError writes the {error, code} body spec §6 prescribes.
func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeDecodeError distinguishes an oversized body from merely invalid
// JSON, mirroring the teacher's writeDecodeError.
func writeDecodeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON in request body")
}

// writeEngineError maps an engine-layer error (pkg/ierr taxonomy) to the
// REST status/code pair spec §7 prescribes.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, ierr.HTTPStatus(err), ierr.Code(err), err.Error())
}
