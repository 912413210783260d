// Package taskqueue passes commands from producers to the single worker and
// carries responses back.
package taskqueue

import (
	"context"
	"sync"
	"time"
)

// PollInterval is how often Wait checks for a response.
const PollInterval = 100 * time.Millisecond

type publishedResponse struct {
	resp Response
	at   time.Time
}

// Queue is a FIFO of commands plus a map of published responses.
// One mutex guards both. It is never held while a command executes.
type Queue struct {
	mu        sync.Mutex
	lastID    TaskID
	commands  []Command
	responses map[TaskID]publishedResponse
	ready     chan struct{}
	now       func() time.Time
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		commands:  make([]Command, 0),
		responses: make(map[TaskID]publishedResponse),
		ready:     make(chan struct{}, 1),
		now:       time.Now,
	}
}

// NextTaskID allocates a fresh task ID.
func (q *Queue) NextTaskID() TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastID++
	return q.lastID
}

// Enqueue appends cmd and wakes the worker.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.commands = append(q.commands, cmd)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes the oldest command.
func (q *Queue) Dequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil, false
	}
	cmd := q.commands[0]
	q.commands[0] = nil
	q.commands = q.commands[1:]
	return cmd, true
}

// Ready is signalled after Enqueue. A receive does not guarantee a command
// is still pending.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Publish stores a response. A later publish for the same ID replaces it.
func (q *Queue) Publish(resp Response) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses[resp.TaskID] = publishedResponse{resp: resp, at: q.now()}
}

// TryTake removes and returns the response for id if it has been published.
func (q *Queue) TryTake(id TaskID) (Response, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.responses[id]
	if !ok {
		return Response{}, false
	}
	delete(q.responses, id)
	return p.resp, true
}

// Wait polls for the response to id until it arrives, timeout elapses or ctx
// is done. A timeout yields an ErrorValue of KindTimeout.
func (q *Queue) Wait(ctx context.Context, id TaskID, timeout time.Duration) Response {
	if resp, ok := q.TryTake(id); ok {
		return resp
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Response{TaskID: id, Value: ErrorValueFrom(ctx.Err())}
		case <-deadline.C:
			// last look, the worker may have published just now
			if resp, ok := q.TryTake(id); ok {
				return resp
			}
			return Response{TaskID: id, Value: ErrorValue{Message: ErrTimeout.Error(), Kind: KindTimeout}}
		case <-ticker.C:
			if resp, ok := q.TryTake(id); ok {
				return resp
			}
		}
	}
}

// Sweep drops responses published more than maxAge ago and returns how many
// were dropped.
func (q *Queue) Sweep(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	dropped := 0
	for id, p := range q.responses {
		if now.Sub(p.at) > maxAge {
			delete(q.responses, id)
			dropped++
		}
	}
	return dropped
}

// PendingResponses returns the number of unclaimed responses.
func (q *Queue) PendingResponses() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.responses)
}
