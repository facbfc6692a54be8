package mocks

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// MockTransport records the last request it saw and returns a canned response.
type MockTransport struct {
	Req  *http.Request
	Body []byte
	Resp *http.Response
	Err  error
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Req = req
	m.Body = readBody(req)
	return m.Resp, m.Err
}

func CreateMockClient(jsonBody string) *http.Client {
	return &http.Client{
		Transport: &MockTransport{
			Resp: NewResponse(http.StatusOK, jsonBody),
		},
	}
}

// Step is one scripted reply of a SequenceTransport.
type Step struct {
	Status int
	Body   string
	Header http.Header
	Err    error
}

// SequenceTransport replays Steps in order, repeating the last one once the
// script runs out. It is safe for concurrent use.
type SequenceTransport struct {
	mu       sync.Mutex
	Steps    []Step
	Requests []*http.Request
	Bodies   [][]byte
}

func (s *SequenceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	s.Bodies = append(s.Bodies, readBody(req))

	if len(s.Steps) == 0 {
		return NewResponse(http.StatusOK, "{}"), nil
	}
	idx := len(s.Requests) - 1
	if idx >= len(s.Steps) {
		idx = len(s.Steps) - 1
	}
	step := s.Steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	res := NewResponse(step.Status, step.Body)
	for key, values := range step.Header {
		res.Header[key] = values
	}
	res.Request = req
	return res, nil
}

// Calls returns the number of requests seen so far.
func (s *SequenceTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

func CreateSequenceClient(steps ...Step) (*http.Client, *SequenceTransport) {
	transport := &SequenceTransport{Steps: steps}
	return &http.Client{Transport: transport}, transport
}

func NewResponse(status int, body string) *http.Response {
	return &http.Response{
		Status:     http.StatusText(status),
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func readBody(req *http.Request) []byte {
	if req.Body == nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	return b
}
