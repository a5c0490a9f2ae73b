package abi

import (
	"go.bytecodealliance.org/wit"
)

// WIT definitions of the seamlezz:surrealdb/call interface.
var (
	Bytes = &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}

	LiveAction = &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{
		{Name: "create"},
		{Name: "update"},
		{Name: "delete"},
		{Name: "killed"},
	}}}

	LiveEvent = &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "subscription-id", Type: wit.U64{}},
		{Name: "query-id", Type: wit.String{}},
		{Name: "action", Type: LiveAction},
		{Name: "data", Type: Bytes},
	}}}

	QueryError = &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "param-decode", Type: wit.String{}},
		{Name: "query-execution", Type: wit.String{}},
		{Name: "stream-open", Type: wit.String{}},
	}}}

	PollResult = &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "ready", Type: LiveEvent},
		{Name: "pending"},
		{Name: "closed"},
		{Name: "cancelled"},
	}}}

	OptionLiveEvent = &wit.TypeDef{Kind: &wit.Option{Type: LiveEvent}}

	LiveStream    = &wit.TypeDef{Kind: &wit.Resource{}}
	OwnLiveStream = &wit.TypeDef{Kind: &wit.Own{Type: LiveStream}}

	Param  = &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.String{}, Bytes}}}
	Params = &wit.TypeDef{Kind: &wit.List{Type: Param}}

	StatementResult = &wit.TypeDef{Kind: &wit.Result{OK: Bytes, Err: wit.String{}}}
	QueryResult     = &wit.TypeDef{Kind: &wit.Result{
		OK:  &wit.TypeDef{Kind: &wit.List{Type: StatementResult}},
		Err: QueryError,
	}}

	SubscribeResult = &wit.TypeDef{Kind: &wit.Result{
		OK:  &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U64{}, OwnLiveStream}}},
		Err: QueryError,
	}}

	CancelResult = &wit.TypeDef{Kind: &wit.Result{Err: wit.String{}}}
)

// Query error cases.
const (
	ErrParamDecode uint8 = iota
	ErrQueryExecution
	ErrStreamOpen
)

// Poll result cases.
const (
	PollReady uint8 = iota
	PollPending
	PollClosed
	PollCancelled
)

// Layouts of the call interface types.
type Layouts struct {
	LiveEvent       Info
	PollResult      Info
	OptionLiveEvent Info
	Param           Info
	StatementResult Info
	QueryError      Info
	QueryResult     Info
	SubscribeResult Info
	CancelResult    Info
}

// CallLayouts computes the layouts of every call interface type.
func CallLayouts() Layouts {
	c := NewCalculator()
	return Layouts{
		LiveEvent:       c.Calculate(LiveEvent),
		PollResult:      c.Calculate(PollResult),
		OptionLiveEvent: c.Calculate(OptionLiveEvent),
		Param:           c.Calculate(Param),
		StatementResult: c.Calculate(StatementResult),
		QueryError:      c.Calculate(QueryError),
		QueryResult:     c.Calculate(QueryResult),
		SubscribeResult: c.Calculate(SubscribeResult),
		CancelResult:    c.Calculate(CancelResult),
	}
}
