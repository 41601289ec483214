// Package exhook implements the external-hook filter: a
// request/response service the broker calls on every publish lifecycle
// event. Only OnMessagePublish carries logic; every other hook is a no-op
// or CONTINUE verdict (authentication/authorization stays with the
// broker). Transport is HTTP+JSON rather than literal EMQX gRPC.
package exhook

// Verdict is the publish-hook response type.
type Verdict string

const (
	VerdictStopAndReturn Verdict = "STOP_AND_RETURN"
	VerdictContinue      Verdict = "CONTINUE"
	VerdictIgnore        Verdict = "IGNORE"
)

// Message is the broker's publish event payload: node, id, qos, topic,
// payload, timestamp, from, and headers.
type Message struct {
	Node      string            `json:"node"`
	ID        uint64            `json:"id"`
	QoS       int32             `json:"qos"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Timestamp int64             `json:"timestamp"`
	From      string            `json:"from"`
	Headers   map[string]string `json:"headers"`
}

// Filter holds the configured allow-list and decides publish admission. It
// is effectively immutable after construction, so the bounded worker pool
// in Server needs no additional locking around it.
type Filter struct {
	allowed map[string]bool
}

// NewFilter builds a Filter from the configured allow-list of usernames.
func NewFilter(allowedUsers []string) *Filter {
	allowed := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = true
	}
	return &Filter{allowed: allowed}
}

// OnMessagePublish tags msg.Headers with allow_publish="true"/"false" based
// on headers["username"] and returns STOP_AND_RETURN with the mutated
// message. Every other attribute is preserved bit-exact.
func (f *Filter) OnMessagePublish(msg Message) (Verdict, Message) {
	username := msg.Headers["username"]
	allow := f.allowed[username]

	newHeaders := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		newHeaders[k] = v
	}
	if allow {
		newHeaders["allow_publish"] = "true"
	} else {
		newHeaders["allow_publish"] = "false"
	}

	out := msg
	out.Headers = newHeaders
	return VerdictStopAndReturn, out
}
