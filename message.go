package autofetch

import "context"

// Mod tells the worker which rewrite modifier a discovered URL belongs to.
type Mod string

// Rewrite modifiers.
const (
	ModImage Mod = "im_"
	ModEmbed Mod = "oe_"
)

// MessageType discriminates messages sent to the worker.
type MessageType string

// Message types understood by the worker.
const (
	MessageValues   MessageType = "values"
	MessageFetchAll MessageType = "fetch-all"
)

// EnvelopeTag marks a message forwarded from a subordinate frame to the top frame.
const EnvelopeTag = "aaworker"

// URLRecord is a URL-bearing attribute value discovered in the document.
//
// Value is the raw attribute text: a single URL for src records, srcset
// syntax for srcset records. Relative references inside Value are resolved
// by the worker against Resolve.
type URLRecord struct {
	Value   string `json:"value"`
	Resolve string `json:"resolve"`
	Mod     Mod    `json:"mod"`
}

// MediaRule is the serialized text of one @media rule and the URI its
// relative references resolve against.
type MediaRule struct {
	CSSText string `json:"cssText"`
	Resolve string `json:"resolve"`
}

// Message is the envelope posted to the worker.
//
// A values message carries at least one non-empty Srcset, Src or Media
// array. A fetch-all message carries explicit URLs in Values.
type Message struct {
	Type   MessageType `json:"type"`
	Srcset []URLRecord `json:"srcset,omitempty"`
	Src    []URLRecord `json:"src,omitempty"`
	Media  []MediaRule `json:"media,omitempty"`
	Values []string    `json:"values,omitempty"`

	// WBType is set on messages that already carry a cross-frame tag.
	WBType string `json:"wb_type,omitempty"`
}

// Empty reports whether the message carries nothing worth sending.
func (m *Message) Empty() bool {
	return len(m.Srcset) == 0 && len(m.Src) == 0 && len(m.Media) == 0 && len(m.Values) == 0
}

// Envelope wraps a message forwarded from a subordinate frame.
type Envelope struct {
	WBType string   `json:"wb_type"`
	Msg    *Message `json:"msg"`
}

// WorkerChannel delivers messages to the background worker.
//
// PostMessage is fire-and-forget: it never blocks on the worker and never
// fails. Terminate stops a worker owned by the channel; channels that do not
// own a worker treat it as a no-op.
type WorkerChannel interface {
	PostMessage(msg *Message)
	Terminate()
}

// FrameMessenger sends structured messages from a subordinate frame to the
// top frame. The target origin is unrestricted; the top frame checks origins.
type FrameMessenger interface {
	// PostToTop delivers a JSON-serializable payload to the top frame.
	PostToTop(ctx context.Context, payload any) error
}

// Posture identifies whether the current context owns the worker.
type Posture int

// Frame postures.
const (
	PostureTop Posture = iota
	PostureSubordinate
)

// String returns the posture name.
func (p Posture) String() string {
	switch p {
	case PostureTop:
		return "top"
	case PostureSubordinate:
		return "subordinate"
	default:
		return "unknown"
	}
}
