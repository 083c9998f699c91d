package telegram

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gotd/td/bin"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// invokeWithTakeout#aca9fd2e takeout_id:long query:!X = X
const invokeWithTakeoutID = 0xaca9fd2e

// takeoutQuery wraps an arbitrary RPC in an invokeWithTakeout container.
type takeoutQuery struct {
	id    int64
	query bin.Encoder
}

func (q takeoutQuery) Encode(b *bin.Buffer) error {
	b.PutID(invokeWithTakeoutID)
	b.PutLong(q.id)
	return q.query.Encode(b)
}

// takeoutMiddleware transparently routes every RPC through the active
// takeout session once one is armed. Zero id means pass-through.
type takeoutMiddleware struct {
	id atomic.Int64
}

func (m *takeoutMiddleware) Handle(next tg.Invoker) tgclient.InvokeFunc {
	return func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		if id := m.id.Load(); id != 0 {
			input = takeoutQuery{id: id, query: input}
		}
		return next.Invoke(ctx, input, output)
	}
}

// EnterTakeout initializes a server-side takeout session and routes further
// RPCs of this client through it. Takeout relaxes rate limits for bulk
// export at the cost of an init step that may itself be rate limited
// (TAKEOUT_INIT_DELAY).
func (s *Session) EnterTakeout(ctx context.Context) error {
	takeout, err := s.api.AccountInitTakeoutSession(ctx, &tg.AccountInitTakeoutSessionRequest{
		MessageUsers:      true,
		MessageChats:      true,
		MessageMegagroups: true,
		MessageChannels:   true,
	})
	if err != nil {
		return fmt.Errorf("init takeout: %w", err)
	}

	s.takeout.id.Store(takeout.ID)
	s.log.Debug().Int64("takeout_id", takeout.ID).Msg("telegram: takeout session armed")
	return nil
}

// LeaveTakeout finishes the takeout session, reporting success so the
// server releases the export slot.
func (s *Session) LeaveTakeout(ctx context.Context) error {
	if s.takeout.id.Load() == 0 {
		return nil
	}

	// the finish call itself must travel inside the takeout wrapper, so the
	// id is cleared only after it succeeds
	_, err := s.api.AccountFinishTakeoutSession(ctx, &tg.AccountFinishTakeoutSessionRequest{
		Success: true,
	})
	if err != nil {
		return fmt.Errorf("finish takeout: %w", err)
	}
	s.takeout.id.Store(0)
	return nil
}
