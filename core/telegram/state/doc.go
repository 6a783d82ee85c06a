// Package state provides the in-memory per-chat session store used by
// conversational flows. It is domain-agnostic: the session value is a type
// parameter owned by the flow engine.
package state
