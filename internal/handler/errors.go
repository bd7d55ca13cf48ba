package handler

import (
	"errors"
	"net/http"

	"snackorder/internal/apperror"
	"snackorder/internal/middleware"
	"snackorder/internal/model"
	"snackorder/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes the envelope for err. Unclassified errors are hidden
// behind a generic message and attached to the context for the request log.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError && apperror.KindOf(err) == apperror.KindInternal {
		_ = c.Error(err)
		c.JSON(status, response.Failure(status, string(apperror.KindInternal), "Internal server error"))
		return
	}

	msg := err.Error()
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, response.Failure(status, string(apperror.KindOf(err)), msg))
}

func identity(c *gin.Context) (model.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
	}
	return id, ok
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, string(apperror.KindInvalidInput), "Invalid "+name+" format"))
		return uuid.Nil, false
	}
	return id, true
}
