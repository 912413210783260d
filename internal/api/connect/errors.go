package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/jukeula/internal/app/jukebox"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
)

func toConnectError(err error) *connect.Error {
	code := connect.CodeUnavailable
	switch {
	case errors.Is(err, jukebox.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, taskqueue.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, player.ErrNotAuthenticated):
		code = connect.CodeUnauthenticated
	case errors.Is(err, player.ErrNoDevice), errors.Is(err, player.ErrDeviceNotFound):
		code = connect.CodeFailedPrecondition
	}
	return connect.NewError(code, err)
}
