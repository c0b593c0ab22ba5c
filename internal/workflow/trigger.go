package workflow

import "strings"

// Trigger identifies a semantic user action observed on the wire.
//
// Triggers form a closed set: every switch over Trigger values should be
// exhaustive so that adding a new trigger forces a compile-time review of
// all handlers.
type Trigger string

const (
	TriggerCreatePost     Trigger = "CreatePost"
	TriggerCreateQuote    Trigger = "CreateQuote"
	TriggerCreateReply    Trigger = "CreateReply"
	TriggerCreateRepost   Trigger = "CreateRepost"
	TriggerCreateBookmark Trigger = "CreateBookmark"
	TriggerDeleteBookmark Trigger = "DeleteBookmark"
)

// Triggers lists all triggers in presentation order.
var Triggers = []Trigger{
	TriggerCreatePost,
	TriggerCreateQuote,
	TriggerCreateReply,
	TriggerCreateRepost,
	TriggerCreateBookmark,
	TriggerDeleteBookmark,
}

// ValidTriggers is the membership set for validation.
var ValidTriggers = func() map[Trigger]bool {
	m := make(map[Trigger]bool, len(Triggers))
	for _, t := range Triggers {
		m[t] = true
	}
	return m
}()

// WatchedEndpoints is the fixed set of remote endpoint names the observer
// cares about. Calls to any other endpoint are ignored entirely.
var WatchedEndpoints = map[string]bool{
	"CreatePost":     true,
	"CreateRepost":   true,
	"CreateBookmark": true,
	"DeleteBookmark": true,
}

// ReplyRef is the reply-target portion of a create-post request body.
type ReplyRef struct {
	InReplyToID string `json:"in_reply_to_post_id"`
}

// Variables carries the fields the classifier and target resolution read
// from a request body. The remote API sends far more; everything else is
// ignored.
type Variables struct {
	TargetID      string    `json:"target_id"`
	AttachmentURL string    `json:"attachment_url"`
	Text          string    `json:"text"`
	Reply         *ReplyRef `json:"reply,omitempty"`
}

// RequestBody is the decoded body of a watched outgoing call.
type RequestBody struct {
	Variables Variables `json:"variables"`
}

// Request is the captured request half of an intercepted call.
type Request struct {
	URL    string      `json:"url"`
	Method string      `json:"method"`
	Body   RequestBody `json:"body"`
}

// ResponseBody carries the only response field the engine reads: the
// server-assigned id of a freshly created post, when present.
type ResponseBody struct {
	CreatedID string `json:"created_id"`
}

// Response is the captured response half of an intercepted call. A failed
// or timed-out call yields a zero Response; the pipeline drops the event.
type Response struct {
	Status int          `json:"status"`
	Body   ResponseBody `json:"body"`
}

// Call is one intercepted network call: the endpoint it targeted plus both
// halves of the exchange. Calls are transient - they exist only for the
// duration of classification and matching, and are never persisted.
type Call struct {
	Endpoint string   `json:"endpoint"`
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Classify maps an endpoint name and request body to a concrete trigger.
//
// The create-post endpoint is overloaded: the same physical endpoint
// carries plain posts, quotes, and replies. Disambiguation runs disjoint
// predicates in a fixed priority order:
//
//  1. a reply-target field means a reply,
//  2. else an attachment URL means a quote,
//  3. else it is a plain post.
//
// All other watched endpoints map one-to-one. Unwatched endpoints return
// ok=false - never an error, since most traffic is expected not to match.
func Classify(endpoint string, body RequestBody) (Trigger, bool) {
	switch endpoint {
	case "CreatePost":
		v := body.Variables
		if v.Reply != nil && v.Reply.InReplyToID != "" {
			return TriggerCreateReply, true
		}
		if v.AttachmentURL != "" {
			return TriggerCreateQuote, true
		}
		return TriggerCreatePost, true
	case "CreateRepost":
		return TriggerCreateRepost, true
	case "CreateBookmark":
		return TriggerCreateBookmark, true
	case "DeleteBookmark":
		return TriggerDeleteBookmark, true
	default:
		return "", false
	}
}

// ResolveTarget extracts the target id an action should operate on from an
// intercepted call. The rule depends on the trigger:
//
//   - CreatePost: the server-assigned id of the new post,
//   - CreateQuote: the last path segment of the attachment URL,
//   - CreateReply: the server-assigned id, falling back to the
//     reply-target id from the request when the response carried none,
//   - CreateRepost / CreateBookmark / DeleteBookmark: the explicit target
//     id from the request.
//
// Returns ok=false when no rule yields a usable id; callers log and drop
// the event.
func ResolveTarget(trigger Trigger, call Call) (string, bool) {
	v := call.Request.Body.Variables

	var id string
	switch trigger {
	case TriggerCreatePost:
		id = call.Response.Body.CreatedID
	case TriggerCreateQuote:
		id = lastPathSegment(v.AttachmentURL)
	case TriggerCreateReply:
		id = call.Response.Body.CreatedID
		if id == "" && v.Reply != nil {
			id = v.Reply.InReplyToID
		}
	case TriggerCreateRepost, TriggerCreateBookmark, TriggerDeleteBookmark:
		id = v.TargetID
	}

	return id, id != ""
}

// lastPathSegment returns the substring after the final "/", ignoring any
// query string. An attachment URL like ".../status/42" yields "42".
func lastPathSegment(u string) string {
	if u == "" {
		return ""
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimSuffix(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}
