/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON request bodies strictly, rejecting unknown fields and trailing content, and
maps every failure to an application error so handlers can respond uniformly.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"stickychat/internal/pkg/errs"
)

// MaxBodySize caps JSON request bodies.
const MaxBodySize int64 = 64 << 10 // 64 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
