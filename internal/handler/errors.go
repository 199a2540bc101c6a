package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
	"github.com/weiawesome/autoschool-chat/pkg/response"
)

// respondError renders a service error with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		c.Error(err)
		response.InternalError(c, "internal error")
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		response.ValidationFailed(c, de.Field, de.Detail)
	case domain.KindNotFound:
		response.NotFound(c, de.Detail)
	case domain.KindInvalidTransition:
		response.Error(c, http.StatusConflict, string(de.Kind), de.Detail)
	case domain.KindRateLimited:
		response.Error(c, http.StatusTooManyRequests, string(de.Kind), de.Detail)
	default:
		c.Error(err)
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("store unavailable")
		response.Error(c, http.StatusInternalServerError, string(domain.KindStoreUnavailable), "message store unavailable")
	}
}

var errMissingToken = errors.New("missing token")
