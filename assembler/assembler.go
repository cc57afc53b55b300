package assembler

import (
	"context"
	"time"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
)

// Clock abstracts time.Now for deterministic tests; production callers pass
// time.Now.
type Clock func() time.Time

// Assemble drives streamer to completion, publishing message_start,
// message_update, and message_end onto stream as it goes, and returns the
// final AssistantMessage. ctx cancellation observed between events produces
// a synthetic aborted message preserving whatever partial content had
// arrived (§4.2 edge case).
func Assemble(ctx context.Context, stream *event.Stream, streamer Streamer, now Clock) (message.AssistantMessage, error) {
	if now == nil {
		now = time.Now
	}

	var (
		started bool
		current message.AssistantMessage
	)

	emitStartIfNeeded := func(m message.AssistantMessage) error {
		if started {
			return nil
		}
		started = true
		return stream.Publish(ctx, event.MessageStart(m))
	}

	for {
		if err := ctx.Err(); err != nil {
			aborted := current
			aborted.StopReason = message.StopAborted
			aborted.ErrorMessage = "Request was aborted"
			aborted.Timestamp = now()
			if err := emitStartIfNeeded(aborted); err != nil {
				return message.AssistantMessage{}, err
			}
			if err := stream.Publish(ctx, event.MessageEnd(aborted)); err != nil {
				return message.AssistantMessage{}, err
			}
			return aborted, nil
		}

		ev, recvErr := streamer.Recv(ctx)
		if recvErr != nil {
			if ctx.Err() != nil {
				// Recv unblocked because of cancellation, not a genuine
				// transport failure: loop back to the ctx.Err() branch
				// above on the next iteration's synthesis path.
				continue
			}
			final, ferr := streamer.Result(ctx)
			if ferr != nil {
				final = current
			}
			if final.StopReason != message.StopAborted {
				final.StopReason = message.StopError
			}
			if final.ErrorMessage == "" {
				final.ErrorMessage = recvErr.Error()
			}
			final.Timestamp = now()
			if err := emitStartIfNeeded(final); err != nil {
				return message.AssistantMessage{}, err
			}
			if err := stream.Publish(ctx, event.MessageEnd(final)); err != nil {
				return message.AssistantMessage{}, err
			}
			return final, nil
		}

		switch ev.Kind {
		case EventStart:
			current = ev.Partial
			if err := emitStartIfNeeded(current); err != nil {
				return message.AssistantMessage{}, err
			}

		case EventDone, EventError:
			final, err := streamer.Result(ctx)
			if err != nil {
				final = current
				final.StopReason = message.StopError
				final.ErrorMessage = err.Error()
			}
			if ev.Kind == EventError {
				if final.StopReason != message.StopAborted {
					final.StopReason = message.StopError
				}
				if final.ErrorMessage == "" {
					final.ErrorMessage = ev.ErrorMessage
				}
			}
			final.Timestamp = now()
			if err := emitStartIfNeeded(final); err != nil {
				return message.AssistantMessage{}, err
			}
			if err := stream.Publish(ctx, event.MessageEnd(final)); err != nil {
				return message.AssistantMessage{}, err
			}
			return final, nil

		default:
			// Text/thinking/tool-call start/delta/end: replace the working
			// partial and emit message_update carrying the raw transport
			// event for consumers that want the incremental delta.
			current = ev.Partial
			if err := emitStartIfNeeded(current); err != nil {
				return message.AssistantMessage{}, err
			}
			if err := stream.Publish(ctx, event.MessageUpdate(current, ev)); err != nil {
				return message.AssistantMessage{}, err
			}
		}
	}
}
