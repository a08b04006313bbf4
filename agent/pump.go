package agent

import (
	"context"
	"errors"
	"io"

	"github.com/spetersoncode/difybridge/dify"
)

type upstreamKind int

const (
	upstreamEvent upstreamKind = iota
	upstreamThreadID
	upstreamRetry
	upstreamError
)

// upstreamMsg is what the reader goroutine hands to the run loop.
// Closing the channel marks the end of the stream.
type upstreamMsg struct {
	kind     upstreamKind
	event    *dify.StreamEvent
	threadID string
	err      error
}

// retryRequest marks an attempt that should be repeated without the
// conversation id.
type retryRequest struct {
	cause error
}

func (e *retryRequest) Error() string { return e.cause.Error() }
func (e *retryRequest) Unwrap() error { return e.cause }

func isRetryRequest(err error) bool {
	var rr *retryRequest
	return errors.As(err, &rr)
}

// pump posts req and forwards the response records to out in arrival
// order. The conversation id is announced once, ahead of the record that
// first carries it. pump closes out before returning.
func pump(ctx context.Context, client *dify.Client, req *dify.ChatRequest, out chan<- upstreamMsg) error {
	defer close(out)

	stream, err := client.ChatMessages(ctx, req)
	if err != nil {
		kind := upstreamError
		if req.ConversationID != "" && dify.IsInvalidConversation(err) {
			kind = upstreamRetry
		}
		return send(ctx, out, upstreamMsg{kind: kind, err: err})
	}
	defer stream.Close()

	announced := false
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return send(ctx, out, upstreamMsg{kind: upstreamError, err: err})
		}

		if !announced && ev.ConversationID != "" {
			announced = true
			if err := send(ctx, out, upstreamMsg{kind: upstreamThreadID, threadID: ev.ConversationID}); err != nil {
				return err
			}
		}
		if err := send(ctx, out, upstreamMsg{kind: upstreamEvent, event: ev}); err != nil {
			return err
		}
	}
}

func send(ctx context.Context, out chan<- upstreamMsg, msg upstreamMsg) error {
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
