// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parcel/internal/pkg/errs"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusByKind maps each error kind to its HTTP status. Kinds not listed are
// internal errors.
var statusByKind = map[errs.Kind]int{
	errs.KindNotFound:      http.StatusNotFound,
	errs.KindAuthorization: http.StatusForbidden,
	errs.KindState:         http.StatusConflict,
	errs.KindValidation:    http.StatusBadRequest,
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError surfaces the typed reason; anything untyped is logged by
// the caller's middleware and hidden behind "internal error".
func writeServiceError(c *gin.Context, err error) {
	status, ok := statusByKind[errs.KindOf(err)]
	if !ok {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(c, status, errs.Message(err))
}
