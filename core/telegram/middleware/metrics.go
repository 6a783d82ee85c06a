package middleware

import tele "gopkg.in/telebot.v4"

const repliesKey = "replies"

// Replies counts what a handler sent back for one update.
type Replies struct {
	Messages int
	Edits    int
	Keyboard bool
}

// RepliesOf returns the counters recorded for c. Updates that did not pass
// through ReplyMetricsMiddleware report zero.
func RepliesOf(c tele.Context) Replies {
	if r, ok := c.Get(repliesKey).(*Replies); ok && r != nil {
		return *r
	}
	return Replies{}
}

// ReplyMetricsMiddleware counts successful sends and edits, and whether any
// of them carried a keyboard.
func ReplyMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		r := &Replies{}
		c.Set(repliesKey, r)
		return next(countingContext{Context: c, r: r})
	}
}

type countingContext struct {
	tele.Context
	r *Replies
}

func (c countingContext) note(err error, edit bool, opts []interface{}) error {
	if err != nil {
		return err
	}
	if edit {
		c.r.Edits++
	} else {
		c.r.Messages++
	}
	if carriesKeyboard(opts) {
		c.r.Keyboard = true
	}
	return nil
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Send(what, opts...), false, opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Reply(what, opts...), false, opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Edit(what, opts...), true, opts)
}

// EditOrSend edits for callbacks and sends otherwise; count it the same way.
func (c countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.EditOrSend(what, opts...), c.Callback() != nil, opts)
}

func (c countingContext) EditOrReply(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.EditOrReply(what, opts...), c.Callback() != nil, opts)
}

func carriesKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}
