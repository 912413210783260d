package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/jukeula/internal/app/notification"
)

// Client calls JukeboxService.
type Client struct {
	adminToken string

	resume      *connect.Client[emptypb.Empty, emptypb.Empty]
	pause       *connect.Client[emptypb.Empty, emptypb.Empty]
	skip        *connect.Client[emptypb.Empty, emptypb.Empty]
	clearDevice *connect.Client[emptypb.Empty, emptypb.Empty]
	request     *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	downvote    *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	setDevice   *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	search      *connect.Client[wrapperspb.StringValue, structpb.ListValue]
	listDevices *connect.Client[emptypb.Empty, structpb.ListValue]
	getStatus   *connect.Client[emptypb.Empty, structpb.Struct]
	getQueue    *connect.Client[emptypb.Empty, structpb.ListValue]
}

// NewClient creates a client for the server at baseURL. adminToken is sent
// with every call when set.
func NewClient(httpClient connect.HTTPClient, baseURL, adminToken string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		adminToken:  adminToken,
		resume:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ResumeProcedure, opts...),
		pause:       connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PauseProcedure, opts...),
		skip:        connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+SkipProcedure, opts...),
		clearDevice: connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ClearDeviceProcedure, opts...),
		request:     connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+RequestProcedure, opts...),
		downvote:    connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+DownvoteProcedure, opts...),
		setDevice:   connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SetDeviceProcedure, opts...),
		search:      connect.NewClient[wrapperspb.StringValue, structpb.ListValue](httpClient, baseURL+SearchProcedure, opts...),
		listDevices: connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+ListDevicesProcedure, opts...),
		getStatus:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		getQueue:    connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+GetQueueProcedure, opts...),
	}
}

func newRequest[T any](c *Client, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if c.adminToken != "" {
		req.Header().Set(AdminTokenHeader, c.adminToken)
	}
	return req
}

// Resume resumes playback.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.resume.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	return err
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.pause.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	return err
}

// Skip skips the current track.
func (c *Client) Skip(ctx context.Context) error {
	_, err := c.skip.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	return err
}

// ClearDevice forgets the active device.
func (c *Client) ClearDevice(ctx context.Context) error {
	_, err := c.clearDevice.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	return err
}

// Request votes for a track.
func (c *Client) Request(ctx context.Context, trackID string) error {
	_, err := c.request.CallUnary(ctx, newRequest(c, wrapperspb.String(trackID)))
	return err
}

// Downvote removes a vote from a track.
func (c *Client) Downvote(ctx context.Context, trackID string) error {
	_, err := c.downvote.CallUnary(ctx, newRequest(c, wrapperspb.String(trackID)))
	return err
}

// SetDevice selects the playback device.
func (c *Client) SetDevice(ctx context.Context, deviceID string) error {
	_, err := c.setDevice.CallUnary(ctx, newRequest(c, wrapperspb.String(deviceID)))
	return err
}

// Search searches tracks.
func (c *Client) Search(ctx context.Context, query string) ([]notification.Song, error) {
	resp, err := c.search.CallUnary(ctx, newRequest(c, wrapperspb.String(query)))
	if err != nil {
		return nil, err
	}
	var songs []notification.Song
	if err := decode(resp.Msg.AsSlice(), &songs); err != nil {
		return nil, errors.Wrap(err, "search")
	}
	return songs, nil
}

// ListDevices lists the devices of the session.
func (c *Client) ListDevices(ctx context.Context) ([]notification.Device, error) {
	resp, err := c.listDevices.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	var devices []notification.Device
	if err := decode(resp.Msg.AsSlice(), &devices); err != nil {
		return nil, errors.Wrap(err, "list devices")
	}
	return devices, nil
}

// GetStatus returns the playback status.
func (c *Client) GetStatus(ctx context.Context) (*notification.Status, error) {
	resp, err := c.getStatus.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	var st notification.Status
	if err := decode(resp.Msg.AsMap(), &st); err != nil {
		return nil, errors.Wrap(err, "get status")
	}
	return &st, nil
}

// GetQueue returns the list ordered by votes.
func (c *Client) GetQueue(ctx context.Context) ([]notification.QueueItem, error) {
	resp, err := c.getQueue.CallUnary(ctx, newRequest(c, &emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	var items []notification.QueueItem
	if err := decode(resp.Msg.AsSlice(), &items); err != nil {
		return nil, errors.Wrap(err, "get queue")
	}
	return items, nil
}
