package fetch

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// epochSeconds marshals a time.Time as a float Unix-epoch-seconds number
// (e.g. 1699999999.123), matching spec.md §4.9's exportToJson "timestamp"
// field rather than time.Time's default RFC3339-string encoding.
type epochSeconds time.Time

func (e epochSeconds) MarshalJSON() ([]byte, error) {
	secs := float64(time.Time(e).UnixNano()) / 1e9
	return sonic.Marshal(secs)
}

func (e *epochSeconds) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := sonic.Unmarshal(data, &secs); err != nil {
		return err
	}
	whole := int64(secs)
	frac := secs - float64(whole)
	*e = epochSeconds(time.Unix(whole, int64(frac*1e9)))
	return nil
}

// recordedEntryJSON is the wire shape for one recorded exchange, per
// spec.md §4.9's exportToJson: {request:{method,url,headers,body},
// response:{status,headers,body}, timestamp}. Headers serialize as
// string-array values (map[string][]string), not comma-joined strings, to
// match the documented wire format exactly.
type recordedEntryJSON struct {
	Request   recordedRequestJSON  `json:"request"`
	Response  recordedResponseJSON `json:"response"`
	Timestamp epochSeconds         `json:"timestamp"`
}

type recordedRequestJSON struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body,omitempty"`
}

type recordedResponseJSON struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body,omitempty"`
}

// Recorder captures every request/response exchange the Mock Server handles
// (or, with no mock installed, every real one) while active (spec.md §4.9).
type Recorder struct {
	mu      sync.Mutex
	active  bool
	entries []recordedEntryJSON
}

// NewRecorder builds an inactive Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start clears prior recordings and begins capturing.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.entries = nil
}

// Stop ends capturing and returns what was recorded.
func (r *Recorder) Stop() []recordedEntryJSON {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	return append([]recordedEntryJSON(nil), r.entries...)
}

// Active reports whether the recorder is currently capturing.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Capture appends one exchange if the recorder is active; a no-op otherwise.
func (r *Recorder) Capture(req *Request, uri string, resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}

	reqHeaders := map[string][]string{}
	for _, k := range req.Headers().Keys() {
		reqHeaders[k] = req.Headers().Values(k)
	}
	body, _, _ := req.encodedBody()

	respHeaders := map[string][]string{}
	var status int
	var respBody []byte
	if resp != nil {
		for _, k := range resp.Headers.Keys() {
			respHeaders[k] = resp.Headers.Values(k)
		}
		status = resp.Status
		respBody = resp.Body
	}

	r.entries = append(r.entries, recordedEntryJSON{
		Request: recordedRequestJSON{
			Method:  string(req.Method()),
			URL:     uri,
			Headers: reqHeaders,
			Body:    body,
		},
		Response: recordedResponseJSON{
			Status:  status,
			Headers: respHeaders,
			Body:    respBody,
		},
		Timestamp: epochSeconds(time.Now()),
	})
}

// ExportToJSON serializes the current recordings (spec.md §4.9's exportToJson).
func (r *Recorder) ExportToJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := sonic.Marshal(r.entries)
	if err != nil {
		return nil, newError(KindInvalidInput, "cannot encode recordings", err)
	}
	return data, nil
}

// ImportFromJSON parses exported recordings and installs a Mock Server
// sequence per URL, so repeated calls to the same URL replay captured
// responses in order (spec.md §4.9's importFromJson/replay).
func (r *Recorder) ImportFromJSON(data []byte, server *MockServer) error {
	var entries []recordedEntryJSON
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return newError(KindInvalidInput, "cannot decode recordings", err)
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	return r.Replay(server)
}

// Replay installs a MockSequence per recorded URL on server, so requests to
// that URL return the captured responses in order.
func (r *Recorder) Replay(server *MockServer) error {
	r.mu.Lock()
	entries := append([]recordedEntryJSON(nil), r.entries...)
	r.mu.Unlock()

	byURL := map[string][]*MockResponse{}
	order := []string{}
	for _, e := range entries {
		headers := NewHeadersMulti(e.Response.Headers)
		mr := &MockResponse{Status: e.Response.Status, Headers: headers, Body: e.Response.Body}
		if _, ok := byURL[e.Request.URL]; !ok {
			order = append(order, e.Request.URL)
		}
		byURL[e.Request.URL] = append(byURL[e.Request.URL], mr)
	}

	patterns := make(map[string]MockResponder, len(order))
	for _, url := range order {
		patterns[url] = NewMockSequence(byURL[url]...)
	}
	server.Fake(patterns)
	return nil
}
