package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// stateTTL is how long a consent redirect stays valid.
const stateTTL = 10 * time.Minute

// authStart redirects to the consent page.
func (s *Server) authStart(c *gin.Context) {
	state := uuid.NewString()

	s.mu.Lock()
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(stateTTL)
	s.mu.Unlock()

	c.Redirect(http.StatusFound, s.auth.AuthURL(state))
}

// consumeState removes state and reports whether it was pending.
func (s *Server) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return !s.now().After(exp)
}

func (s *Server) authCallback(c *gin.Context) {
	state := c.Query("state")
	if state == "" || !s.consumeState(state) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}

	token, err := s.auth.Exchange(c.Request.Context(), state, c.Request)
	if err != nil {
		zlog.Warn().Msgf("authorization code exchange failed: error=%v", err)
		abortWithError(c, err)
		return
	}
	if err := s.jukebox.SetAuthToken(token); err != nil {
		abortWithError(c, err)
		return
	}

	zlog.Info().Msg("authorization completed")
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) authDestroy(c *gin.Context) {
	s.jukebox.ClearAuth()
	c.Redirect(http.StatusFound, "/")
}
