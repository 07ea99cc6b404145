package sms

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Stream is a live feed of inbound messages. The foreground and background
// delivery contexts each provide one; both feed the same pipeline.
type Stream interface {
	// Messages delivers messages in arrival order until Close.
	Messages() <-chan Message
	// Close releases the underlying subscription. In-flight messages already
	// handed to a consumer are allowed to finish processing.
	Close() error
}

// Inbox is the bulk historical query: provider messages newest-first,
// optionally bounded below by since.
type Inbox interface {
	Recent(ctx context.Context, since time.Time) ([]Message, error)
}

// wireMessage is the JSON shape bridges write, one object per line.
type wireMessage struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// JSONLStream adapts a line-delimited JSON reader (an OS bridge piping SMS
// events) into a Stream. Malformed lines are dropped silently; the bridge is
// not a trusted producer.
type JSONLStream struct {
	out       chan Message
	closeOnce sync.Once
	done      chan struct{}
}

// NewJSONLStream starts reading r immediately.
func NewJSONLStream(r io.Reader) *JSONLStream {
	s := &JSONLStream{
		out:  make(chan Message),
		done: make(chan struct{}),
	}
	go s.run(r)
	return s
}

func (s *JSONLStream) run(r io.Reader) {
	defer close(s.out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var w wireMessage
		if err := json.Unmarshal(sc.Bytes(), &w); err != nil {
			continue
		}
		msg := Message{
			Sender:     w.Sender,
			Body:       w.Body,
			ReceivedAt: time.UnixMilli(w.Timestamp).UTC(),
		}
		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *JSONLStream) Messages() <-chan Message { return s.out }

func (s *JSONLStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// SliceInbox is an Inbox over a fixed message set; bridges that dump history
// to a file use it, and so do tests.
type SliceInbox struct {
	Msgs []Message
}

// ReadInboxFile loads a JSONL history dump into a SliceInbox. Malformed lines
// are dropped, same as the live stream.
func ReadInboxFile(path string) (*SliceInbox, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inbox := &SliceInbox{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var w wireMessage
		if err := json.Unmarshal(sc.Bytes(), &w); err != nil {
			continue
		}
		inbox.Msgs = append(inbox.Msgs, Message{
			Sender:     w.Sender,
			Body:       w.Body,
			ReceivedAt: time.UnixMilli(w.Timestamp).UTC(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return inbox, nil
}

// Recent returns messages received after since, newest first.
func (s *SliceInbox) Recent(_ context.Context, since time.Time) ([]Message, error) {
	var out []Message
	for _, m := range s.Msgs {
		if m.ReceivedAt.After(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}
