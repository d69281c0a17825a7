// Package sdk hosts the SDK-side service adapters of spec.md §4.7: each
// method opens a channel, accumulates its Input events, and resolves an
// executor.Sender[Outcome[T]] exactly once when the channel completes.
//
// Grounded on original_source/src/sdk/svc/as_sender.hpp's AsSender
// (wraps a service client's submit() as a one-shot sender) and the three
// accumulation patterns spec.md §4.7 names: list-style, map-style, and
// unit-style.
package sdk

import (
	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
)

// Outcome is the resolved value of every SDK sender: Value on success
// (and, for partial-result adapters, on failure too), Err non-nil on
// failure.
type Outcome[T any] struct {
	Value T
	Err   error
}

// ListSend opens a channel against serviceName, sends request, collects
// each decoded Input into a slice, and resolves Success(items) on
// Completed{OK} or Failure(code) otherwise (spec.md §4.7 list-style:
// list-roots, list-registers).
func ListSend[Item any](r *router.ClientRouter, serviceName string, itemCodec channel.Codec[Item], request []byte) *executor.Sender[Outcome[[]Item]] {
	sender := executor.NewSender[Outcome[[]Item]]()
	var items []Item

	ch := r.OpenChannel(serviceName, func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			item, err := itemCodec.Unmarshal(ev.Payload)
			if err == nil {
				items = append(items, item)
			}
		case router.EventCompleted:
			if ev.ErrorCode == ipcerr.OK {
				sender.Resolve(Outcome[[]Item]{Value: items})
			} else {
				sender.Resolve(Outcome[[]Item]{Err: ipcerr.New(ev.ErrorCode, "%s failed", serviceName)})
			}
		}
	})
	if err := ch.Send(request); err != nil {
		sender.Resolve(Outcome[[]Item]{Err: err})
	}
	return sender
}

// MapSend is ListSend's map-style counterpart (spec.md §4.7: execute-command,
// read/write registers): each Input is keyed by keyOf and accumulated into a
// map. If partialOnError is true, the accumulated map is delivered as the
// Value even when the channel completes non-zero (the adapter's contract
// says partial results matter); otherwise a non-zero completion discards
// the map and resolves Failure only.
func MapSend[K comparable, Item any](r *router.ClientRouter, serviceName string, itemCodec channel.Codec[Item], keyOf func(Item) K, partialOnError bool, request []byte) *executor.Sender[Outcome[map[K]Item]] {
	sender := executor.NewSender[Outcome[map[K]Item]]()
	items := make(map[K]Item)

	ch := r.OpenChannel(serviceName, func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			item, err := itemCodec.Unmarshal(ev.Payload)
			if err == nil {
				items[keyOf(item)] = item
			}
		case router.EventCompleted:
			if ev.ErrorCode == ipcerr.OK {
				sender.Resolve(Outcome[map[K]Item]{Value: items})
				return
			}
			outcome := Outcome[map[K]Item]{Err: ipcerr.New(ev.ErrorCode, "%s failed", serviceName)}
			if partialOnError {
				outcome.Value = items
			}
			sender.Resolve(outcome)
		}
	})
	if err := ch.Send(request); err != nil {
		sender.Resolve(Outcome[map[K]Item]{Err: err})
	}
	return sender
}

// UnitSend is spec.md §4.7's unit-style adapter (pop/push root): Input is
// ignored; the channel's completion code alone determines Success/Failure.
func UnitSend(r *router.ClientRouter, serviceName string, request []byte) *executor.Sender[Outcome[struct{}]] {
	sender := executor.NewSender[Outcome[struct{}]]()

	ch := r.OpenChannel(serviceName, func(ev router.ChannelEvent) {
		if ev.Kind != router.EventCompleted {
			return
		}
		if ev.ErrorCode == ipcerr.OK {
			sender.Resolve(Outcome[struct{}]{})
		} else {
			sender.Resolve(Outcome[struct{}]{Err: ipcerr.New(ev.ErrorCode, "%s failed", serviceName)})
		}
	})
	if err := ch.Send(request); err != nil {
		sender.Resolve(Outcome[struct{}]{Err: err})
	}
	return sender
}
