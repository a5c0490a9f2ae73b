package host

import (
	"context"
	stderrors "errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/seamlezz/livebridge"
	"github.com/seamlezz/livebridge/abi"
	"github.com/seamlezz/livebridge/errors"
	"github.com/seamlezz/livebridge/executor"
	"github.com/seamlezz/livebridge/params"
	"github.com/seamlezz/livebridge/resource"
	"github.com/seamlezz/livebridge/stream"
	"github.com/seamlezz/livebridge/subscription"
)

// Offsets inside tuple<string, list<u8>> and tuple<u64, own<live-stream>>.
const (
	paramDataOff    = 8
	subscribeOwnOff = 8
)

// query(query, params, retptr)
func (h *Host) query(ctx context.Context, c *call, stack []uint64) error {
	q, ps, err := h.readRequest(c.mem, stack)
	if err != nil {
		return err
	}
	ret := uint32(stack[4])

	out, err := h.bridge.Query(ctx, q, ps)
	if err != nil {
		return h.writeQueryError(c, ret, h.layouts.QueryResult, err)
	}
	return h.writeOutcomes(c, ret, out)
}

// subscribe(query, params, retptr)
func (h *Host) subscribe(ctx context.Context, c *call, stack []uint64) error {
	q, ps, err := h.readRequest(c.mem, stack)
	if err != nil {
		return err
	}
	ret := uint32(stack[4])

	id, adapter, err := h.bridge.Subscribe(context.WithoutCancel(ctx), q, ps)
	if err != nil {
		return h.writeQueryError(c, ret, h.layouts.SubscribeResult, err)
	}

	handle, err := h.streams.Insert(&liveStream{adapter: adapter, id: id})
	if err != nil {
		adapter.Cancel()
		return err
	}

	off := ret + abi.PayloadOffset(2, h.layouts.SubscribeResult)
	if err := c.mem.WriteU8(ret, 0); err != nil {
		return err
	}
	if err := c.mem.WriteU64(off, id); err != nil {
		return err
	}
	return c.mem.WriteU32(off+subscribeOwnOff, uint32(handle))
}

// cancel(subscription-id, retptr)
func (h *Host) cancel(_ context.Context, c *call, stack []uint64) error {
	id := stack[0]
	ret := uint32(stack[1])

	if err := h.bridge.Cancel(id); err != nil {
		Logger().Debug("cancel failed", zap.Uint64("subscription_id", id), zap.Error(err))
		if err := c.mem.WriteU8(ret, 1); err != nil {
			return err
		}
		return c.writer().StringAt(ret+abi.PayloadOffset(2, h.layouts.CancelResult), executor.Message(err))
	}
	return c.mem.WriteU8(ret, 0)
}

// [method]live-stream.poll-next(self, retptr)
func (h *Host) pollNext(_ context.Context, c *call, stack []uint64) error {
	s, err := h.stream(stack[0])
	if err != nil {
		return err
	}
	ret := uint32(stack[1])

	ev, outcome := s.adapter.Poll(false)
	switch outcome {
	case stream.Completed:
		if err := c.mem.WriteU8(ret, abi.PollReady); err != nil {
			return err
		}
		return h.writeEvent(c, ret+abi.PayloadOffset(4, h.layouts.PollResult), ev)
	case stream.Pending:
		return c.mem.WriteU8(ret, abi.PollPending)
	case stream.Dropped:
		return c.mem.WriteU8(ret, abi.PollClosed)
	default:
		return c.mem.WriteU8(ret, abi.PollCancelled)
	}
}

// [method]live-stream.next(self, retptr)
func (h *Host) next(ctx context.Context, c *call, stack []uint64) error {
	s, err := h.stream(stack[0])
	if err != nil {
		return err
	}
	ret := uint32(stack[1])

	ev, ok, err := s.adapter.Next(ctx)
	if err != nil {
		Logger().Debug("live stream wait interrupted", zap.Uint64("subscription_id", s.id), zap.Error(err))
	}
	if !ok {
		return c.mem.WriteU8(ret, 0)
	}
	if err := c.mem.WriteU8(ret, 1); err != nil {
		return err
	}
	return h.writeEvent(c, ret+abi.PayloadOffset(2, h.layouts.OptionLiveEvent), ev)
}

// [method]live-stream.ready(self) -> bool
func (h *Host) ready(_ context.Context, _ *call, stack []uint64) error {
	s, err := h.stream(stack[0])
	if err != nil {
		return err
	}
	stack[0] = 0
	if s.adapter.Ready() {
		stack[0] = 1
	}
	return nil
}

// [method]live-stream.cancel(self)
func (h *Host) cancelStream(_ context.Context, _ *call, stack []uint64) error {
	s, err := h.stream(stack[0])
	if err != nil {
		return err
	}
	s.adapter.Cancel()
	return nil
}

// [resource-drop]live-stream(self)
func (h *Host) drop(_ context.Context, _ *call, stack []uint64) error {
	if _, ok := h.streams.Remove(resource.Handle(uint32(stack[0]))); !ok {
		return errors.NotFound(errors.PhaseHost, "live-stream", handleName(stack[0]))
	}
	return nil
}

func (h *Host) stream(raw uint64) (*liveStream, error) {
	s, ok := h.streams.Get(resource.Handle(uint32(raw)))
	if !ok {
		return nil, errors.NotFound(errors.PhaseHost, "live-stream", handleName(raw))
	}
	return s, nil
}

// readRequest lifts the (query, params) arguments shared by query and
// subscribe.
func (h *Host) readRequest(mem livebridge.Memory, stack []uint64) (string, []params.Param, error) {
	q, err := abi.ReadString(mem, uint32(stack[0]), uint32(stack[1]), "query")
	if err != nil {
		return "", nil, err
	}
	ps, err := readParams(mem, uint32(stack[2]), uint32(stack[3]), h.layouts.Param)
	if err != nil {
		return "", nil, err
	}
	return q, ps, nil
}

func readParams(mem livebridge.Memory, ptr, n uint32, elem abi.Info) ([]params.Param, error) {
	size := elem.Size
	if _, err := abi.ListBounds(ptr, n, size); err != nil {
		return nil, err
	}
	ps := make([]params.Param, n)
	for i := range n {
		base := ptr + i*size
		nptr, nlen, err := abi.ReadList(mem, base)
		if err != nil {
			return nil, err
		}
		name, err := abi.ReadString(mem, nptr, nlen, "params", "name")
		if err != nil {
			return nil, err
		}
		dptr, dlen, err := abi.ReadList(mem, base+paramDataOff)
		if err != nil {
			return nil, err
		}
		data, err := abi.ReadBytes(mem, dptr, dlen)
		if err != nil {
			return nil, err
		}
		ps[i] = params.Param{Name: name, Data: data}
	}
	return ps, nil
}

// writeOutcomes lowers ok(list<result<list<u8>, string>>) at ret.
func (h *Host) writeOutcomes(c *call, ret uint32, out executor.Outcomes) error {
	w := c.writer()
	elem := h.layouts.StatementResult
	base, err := w.Array(uint32(len(out)), elem)
	if err != nil {
		return err
	}

	payload := abi.PayloadOffset(2, elem)
	for i, o := range out {
		addr := base + uint32(i)*elem.Size
		if o.Failed {
			if err := c.mem.WriteU8(addr, 1); err != nil {
				return err
			}
			if err := w.StringAt(addr+payload, o.Err); err != nil {
				return err
			}
			continue
		}
		if err := c.mem.WriteU8(addr, 0); err != nil {
			return err
		}
		if err := w.BytesAt(addr+payload, o.Data); err != nil {
			return err
		}
	}

	if err := c.mem.WriteU8(ret, 0); err != nil {
		return err
	}
	return w.List(ret+abi.PayloadOffset(2, h.layouts.QueryResult), base, uint32(len(out)))
}

// writeQueryError lowers err(query-error) into a result of the given layout.
func (h *Host) writeQueryError(c *call, ret uint32, result abi.Info, err error) error {
	if werr := c.mem.WriteU8(ret, 1); werr != nil {
		return werr
	}
	addr := ret + abi.PayloadOffset(2, result)
	if werr := c.mem.WriteU8(addr, QueryErrorCase(err)); werr != nil {
		return werr
	}
	return c.writer().StringAt(addr+abi.PayloadOffset(3, h.layouts.QueryError), executor.Message(err))
}

// writeEvent lowers a live-event record at addr.
func (h *Host) writeEvent(c *call, addr uint32, ev subscription.Event) error {
	offs := h.layouts.LiveEvent.FieldOffs
	w := c.writer()
	if err := c.mem.WriteU64(addr+offs["subscription-id"], ev.SubscriptionID); err != nil {
		return err
	}
	if err := w.StringAt(addr+offs["query-id"], ev.QueryID); err != nil {
		return err
	}
	if err := c.mem.WriteU8(addr+offs["action"], uint8(ev.Action)); err != nil {
		return err
	}
	return w.BytesAt(addr+offs["data"], ev.Data)
}

// QueryErrorCase maps a call-aborting error to its query-error case.
func QueryErrorCase(err error) uint8 {
	switch {
	case stderrors.Is(err, errors.ErrParamDecode):
		return abi.ErrParamDecode
	case stderrors.Is(err, errors.ErrStreamOpen):
		return abi.ErrStreamOpen
	default:
		return abi.ErrQueryExecution
	}
}

func handleName(raw uint64) string {
	return "handle " + strconv.FormatUint(raw, 10)
}
