package web

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/app/jukebox"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
)

// httpStatus maps an error class to a response code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, jukebox.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, taskqueue.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, player.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, player.ErrNoDevice), errors.Is(err, player.ErrDeviceNotFound):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		zlog.Warn().Msgf("request failed: path=%s status=%d error=%v", c.Request.URL.Path, code, err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
