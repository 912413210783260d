package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osa030/jukeula/internal/app/notification"
)

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// control wraps a command without arguments.
func (s *Server) control(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn()
		ok(c)
	}
}

// submit wraps a command taking the :id path parameter.
func (s *Server) submit(fn func(id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		ok(c)
	}
}

func (s *Server) search(c *gin.Context) {
	tracks, err := s.jukebox.Search(c.Request.Context(), c.Param("term"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification.NewSongs(tracks))
}

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.jukebox.ListDevices(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification.NewDevices(devices))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, notification.NewStatus(s.jukebox.Status()))
}

func (s *Server) queue(c *gin.Context) {
	c.JSON(http.StatusOK, notification.NewQueue(s.jukebox.Queue()))
}
