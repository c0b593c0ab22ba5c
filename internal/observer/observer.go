// Package observer intercepts the page's outgoing API calls in place.
//
// The observer is an http.RoundTripper wrapper: it watches the traffic
// for the fixed set of endpoints the trigger pipeline cares about,
// forwards a normalized call snapshot to the coordinator over an async
// channel, and lets the original request proceed unmodified. It is
// strictly fire-and-observe: interception never blocks, alters, or
// fails the underlying call.
package observer

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/twillot/twillot/internal/workflow"
)

// callBuffer bounds the emission channel. A consumer that falls this
// far behind loses calls rather than stalling the page's traffic.
const callBuffer = 64

// Observer wraps a transport and emits one workflow.Call per watched,
// successful request-response exchange. Delivery is at-most-once:
// a call is emitted exactly once or dropped, never duplicated, and no
// ordering is guaranteed across distinct originating calls.
type Observer struct {
	next http.RoundTripper
	out  chan workflow.Call
}

// New wraps the given transport. A nil next uses the default transport.
func New(next http.RoundTripper) *Observer {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Observer{
		next: next,
		out:  make(chan workflow.Call, callBuffer),
	}
}

// Calls returns the channel watched calls are emitted on.
func (o *Observer) Calls() <-chan workflow.Call {
	return o.out
}

// RoundTrip forwards the request and, for watched endpoints, snapshots
// both halves of the exchange. Failed calls (transport error or
// non-2xx status) are passed through without emission - the user's
// action did not happen, so no trigger fired.
func (o *Observer) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := endpointName(req.URL.Path)
	if !workflow.WatchedEndpoints[endpoint] {
		return o.next.RoundTrip(req)
	}

	reqBody, err := snapshotRequestBody(req)
	if err != nil {
		// Could not observe without disturbing the call; let it through.
		slog.Warn("call observation skipped: unreadable request body", "endpoint", endpoint, "error", err)
		return o.next.RoundTrip(req)
	}

	resp, err := o.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	respBody, err := snapshotResponseBody(resp)
	if err != nil {
		slog.Warn("call observation skipped: unreadable response body", "endpoint", endpoint, "error", err)
		return resp, nil
	}

	call := workflow.Call{
		Endpoint: endpoint,
		Request: workflow.Request{
			URL:    req.URL.String(),
			Method: req.Method,
			Body:   reqBody,
		},
		Response: workflow.Response{
			Status: resp.StatusCode,
			Body:   respBody,
		},
	}

	select {
	case o.out <- call:
	default:
		slog.Warn("observed call dropped: consumer behind", "endpoint", endpoint)
	}

	return resp, nil
}

// snapshotRequestBody decodes the request body and restores it so the
// underlying transport sees the original stream.
func snapshotRequestBody(req *http.Request) (workflow.RequestBody, error) {
	var body workflow.RequestBody
	if req.Body == nil {
		return body, nil
	}

	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return body, err
	}

	if len(raw) > 0 {
		// A body the decoder cannot parse still classifies - the
		// zero-value variables just match fewer trigger shapes.
		_ = json.Unmarshal(raw, &body)
	}
	return body, nil
}

// snapshotResponseBody decodes the response body and restores it for
// the original caller.
func snapshotResponseBody(resp *http.Response) (workflow.ResponseBody, error) {
	var body workflow.ResponseBody
	if resp.Body == nil {
		return body, nil
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return body, err
	}

	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return body, nil
}

// endpointName extracts the endpoint identifier from a request path:
// the last path segment.
func endpointName(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
