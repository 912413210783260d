package spotify

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/jukeula/internal/domain/player"
)


// statusOf returns the HTTP status carried by a Spotify API error, or 0.
func statusOf(err error) int {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status
	}
	var sp *spotify.Error
	if errors.As(err, &sp) && sp != nil {
		return sp.Status
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}

// classify marks err with the matching player error. notFound is used for
// 404 responses; player commands pass ErrNoDevice since Spotify reports a
// missing active device that way.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return errors.Mark(err, player.ErrNotAuthenticated)
	}

	switch status := statusOf(err); {
	case status == http.StatusUnauthorized:
		return errors.Mark(err, player.ErrNotAuthenticated)
	case status == http.StatusNotFound && notFound != nil:
		return errors.Mark(err, notFound)
	case status == http.StatusBadRequest && notFound == player.ErrTrackNotFound:
		// invalid base62 id
		return errors.Mark(err, notFound)
	}
	return errors.Mark(err, player.ErrTransport)
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch status := statusOf(err); {
	case status == http.StatusTooManyRequests, status >= 500:
		return true
	case status != 0:
		return false
	}

	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
