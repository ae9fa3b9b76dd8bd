package corort

import "math/rand"

// selectCase is a type-erased Select case: tryFunc attempts the
// non-blocking form of the operation, blockFunc performs its blocking
// form, and action runs the case's user callback over the exchanged
// value.
type selectCase struct {
	tryFunc   func() (any, bool, error)
	blockFunc func(from *Job) (any, error)
	action    func(any) (any, error)
}

// SelectBuilder implements spec §4.6's select contract: an ordered
// sequence of send/receive cases, optionally a default, executed by
// trying each case's non-blocking form in registration order before
// falling back to a uniformly random blocking case.
type SelectBuilder struct {
	cases        []selectCase
	hasDefault   bool
	defaultValue any
}

// NewSelect starts an empty select builder.
func NewSelect() *SelectBuilder {
	return &SelectBuilder{}
}

// Default registers the value Execute returns when no case is
// immediately ready. At most one call is meaningful; the last one wins.
func (b *SelectBuilder) Default(value any) *SelectBuilder {
	b.hasDefault = true
	b.defaultValue = value
	return b
}

// SelectReceive adds a receive case against ch, running action with the
// received value when this case wins.
func SelectReceive[T any](b *SelectBuilder, ch *Channel[T], action func(T) (any, error)) *SelectBuilder {
	b.cases = append(b.cases, selectCase{
		tryFunc: func() (any, bool, error) {
			v, ok, err := ch.TryReceive()
			return v, ok, err
		},
		blockFunc: func(from *Job) (any, error) {
			return ch.Receive(from)
		},
		action: func(v any) (any, error) {
			var zero T
			if v == nil {
				return action(zero)
			}
			return action(v.(T))
		},
	})
	return b
}

// SelectSend adds a send case against ch with a fixed value, running
// action when this case wins.
func SelectSend[T any](b *SelectBuilder, ch *Channel[T], value T, action func() (any, error)) *SelectBuilder {
	b.cases = append(b.cases, selectCase{
		tryFunc: func() (any, bool, error) {
			ok, err := ch.TrySend(value)
			return nil, ok, err
		},
		blockFunc: func(from *Job) (any, error) {
			return nil, ch.Send(from, value)
		},
		action: func(any) (any, error) {
			return action()
		},
	})
	return b
}

// Execute walks the cases in registration order, invoking their
// non-blocking form; the first success runs its action and its result is
// returned. If none succeed and a default was registered, the default is
// returned. Otherwise a uniformly random case is chosen and performed as
// a blocking operation, suspending the calling task.
//
// The fairness of the random fallback is intentionally weak: per spec
// §4.6 and the Open Question recorded in SPEC_FULL.md §D.1, only one
// case is registered as a blocking waiter, so a case that is about to
// become ready on a different channel than the chosen one is not
// observed until the next Execute call.
func (b *SelectBuilder) Execute(from *Job) (any, error) {
	for _, c := range b.cases {
		v, ok, err := c.tryFunc()
		if err != nil {
			if err == ErrChannelClosed {
				return c.action(v)
			}
			return nil, err
		}
		if ok {
			return c.action(v)
		}
	}
	if b.hasDefault {
		return b.defaultValue, nil
	}
	if len(b.cases) == 0 {
		return nil, &InvalidArgumentError{Arg: "cases", Message: "select has no cases and no default"}
	}
	chosen := b.cases[rand.Intn(len(b.cases))]
	v, err := chosen.blockFunc(from)
	if err != nil {
		return nil, err
	}
	return chosen.action(v)
}
