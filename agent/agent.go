package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"golang.org/x/sync/errgroup"

	"github.com/spetersoncode/difybridge"
	"github.com/spetersoncode/difybridge/agui"
	"github.com/spetersoncode/difybridge/dify"
	"github.com/spetersoncode/difybridge/retry"
)

// Agent runs AG-UI requests against a Dify chat application.
// An Agent is safe for concurrent use; runs share no mutable state.
type Agent struct {
	client *dify.Client
	opts   *Options
}

// New creates an Agent for the Dify app identified by apiKey.
func New(apiKey string, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	o := ApplyOptions(opts...)
	clientOpts := []dify.ClientOption{
		dify.WithBaseURL(o.BaseURL),
		dify.WithTimeout(o.Timeout),
		dify.WithLogger(o.Logger),
	}
	if o.HTTPClient != nil {
		clientOpts = append(clientOpts, dify.WithHTTPClient(o.HTTPClient))
	}

	return &Agent{
		client: dify.NewClient(apiKey, clientOpts...),
		opts:   o,
	}, nil
}

// BaseURL returns the Dify API root the agent talks to.
func (a *Agent) BaseURL() string {
	return a.client.BaseURL()
}

// Run executes one request and streams the AG-UI events on the returned
// channel, which is closed when the run ends.
//
// A successful run emits RUN_STARTED, STEP_STARTED("chat"), the translated
// answer, STEP_FINISHED and RUN_FINISHED. Failures end the run with a
// single RUN_ERROR. Cancelling ctx stops the upstream read and closes the
// channel without further events.
func (a *Agent) Run(ctx context.Context, input *agui.RunAgentInput) <-chan events.Event {
	out := make(chan events.Event, a.opts.BufferSize)

	go a.runLoop(ctx, input, out)

	return out
}

func (a *Agent) runLoop(ctx context.Context, input *agui.RunAgentInput, out chan<- events.Event) {
	defer close(out)

	mapper := agui.NewMapper(input.ThreadID, input.RunID)
	r := &run{
		agent:  a,
		out:    out,
		mapper: mapper,
		log:    a.opts.Logger.With("run_id", mapper.RunID(), "thread_id", mapper.ThreadID()),
	}

	req, err := PrepareRequest(input)
	if err != nil {
		r.log.Debug("rejected run input", "error", err)
		r.fail(ctx, err)
		return
	}
	req.TraceID = mapper.RunID()

	attempt := 0
	_, err = retry.Do(ctx, retry.Once(isRetryRequest), func() (struct{}, error) {
		attempt++
		attemptReq := req
		if attempt > 1 {
			r.log.Warn("conversation id rejected, retrying without it", "conversation_id", req.ConversationID)
			attemptReq = req.WithoutConversation()
		}
		return struct{}{}, r.attempt(ctx, attemptReq)
	})
	if err != nil {
		r.fail(ctx, err)
		return
	}
	r.log.Debug("run finished", "effective_thread_id", mapper.ThreadID(), "attempts", attempt)
}

// run is the lifecycle state of one Agent.Run call.
type run struct {
	agent  *Agent
	out    chan<- events.Event
	mapper *agui.Mapper
	tr     *Translator
	log    *slog.Logger

	started bool
	queue   []events.Event
}

// attempt performs one upstream call and translates its stream.
func (r *run) attempt(ctx context.Context, req *dify.ChatRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.queue = nil
	r.tr = NewTranslator(r.mapper.ThreadID(), r.mapper.RunID(),
		WithLogger(r.log),
		WithDebugMode(r.agent.opts.DebugMode),
	)

	msgs := make(chan upstreamMsg, r.agent.opts.BufferSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump(gctx, r.agent.client, req, msgs)
	})

	err := r.consume(ctx, msgs)
	cancel()
	// pump only fails once ctx is cancelled; consume has the run's error.
	_ = g.Wait()
	return err
}

func (r *run) consume(ctx context.Context, msgs <-chan upstreamMsg) error {
	for msg := range msgs {
		switch msg.kind {
		case upstreamThreadID:
			if r.tr.BindThread(msg.threadID) {
				if err := r.bindThread(ctx, msg.threadID); err != nil {
					return err
				}
			}

		case upstreamEvent:
			res := r.tr.Translate(msg.event)
			if res.ThreadID != "" {
				if err := r.bindThread(ctx, res.ThreadID); err != nil {
					return err
				}
			}
			if err := r.emitAll(ctx, res.Events); err != nil {
				return err
			}
			if res.Done {
				return r.finish(ctx, res.Failed)
			}

		case upstreamRetry:
			r.queue = nil
			return &retryRequest{cause: msg.err}

		case upstreamError:
			return msg.err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	// The stream ended without message_end.
	if err := r.emitAll(ctx, r.tr.Close()); err != nil {
		return err
	}
	return r.finish(ctx, false)
}

// bindThread records the effective thread id and opens the run.
func (r *run) bindThread(ctx context.Context, threadID string) error {
	r.mapper.SetThreadID(threadID)
	return r.start(ctx)
}

// start emits RUN_STARTED and STEP_STARTED, then any output that was
// waiting for them.
func (r *run) start(ctx context.Context) error {
	if r.started {
		return nil
	}
	r.started = true
	r.log.Debug("run started", "effective_thread_id", r.mapper.ThreadID())

	if err := r.send(ctx, r.mapper.RunStarted()); err != nil {
		return err
	}
	if err := r.send(ctx, r.mapper.StepStarted(StepName)); err != nil {
		return err
	}

	queued := r.queue
	r.queue = nil
	return r.emitAll(ctx, queued)
}

// finish closes the envelope. After an upstream error frame the RUN_ERROR
// has already been emitted, so only the step is closed.
func (r *run) finish(ctx context.Context, failed bool) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	if err := r.send(ctx, r.mapper.StepFinished(StepName)); err != nil {
		return err
	}
	if failed {
		return nil
	}
	return r.send(ctx, r.mapper.RunFinished())
}

// fail ends the run with RUN_ERROR. Output that was waiting for the run to
// start is flushed first; nothing is emitted once ctx is cancelled.
func (r *run) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		r.log.Debug("run cancelled", "error", ctx.Err())
		return
	}
	attrs := []any{"error", err}
	if status := difybridge.StatusCodeOf(err); status != 0 {
		attrs = append(attrs, "status", status)
	}
	if difybridge.IsConversation(err) {
		attrs = append(attrs, "conversation_rejected", true)
	}
	r.log.Warn("run failed", attrs...)

	if len(r.queue) > 0 {
		if r.start(ctx) != nil {
			return
		}
	}
	if r.started && r.tr != nil {
		if r.emitAll(ctx, r.tr.Close()) != nil {
			return
		}
	}
	if r.send(ctx, r.mapper.RunError(err.Error(), errorCode(err))) != nil {
		return
	}
	if r.started {
		_ = r.send(ctx, r.mapper.StepFinished(StepName))
	}
}

func (r *run) emitAll(ctx context.Context, evs []events.Event) error {
	for _, ev := range evs {
		if !r.started {
			r.queue = append(r.queue, ev)
			continue
		}
		if err := r.send(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) send(ctx context.Context, ev events.Event) error {
	if r.agent.opts.FixEventIDs {
		ev = agui.FixEventIDs(ev, r.mapper.ThreadID(), r.mapper.RunID())
	}
	select {
	case r.out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorCode picks the RUN_ERROR code for err: the upstream's own code when
// it sent one, otherwise one derived from the error category.
func errorCode(err error) string {
	if code := difybridge.CodeOf(err); code != "" {
		return code
	}
	switch {
	case difybridge.IsValidation(err):
		return CodeValidation
	case difybridge.IsUpstream(err):
		return CodeUpstream
	case difybridge.IsTransport(err):
		return CodeTransport
	}
	return ""
}
