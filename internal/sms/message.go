// Package sms normalizes inbound carrier messages from whichever delivery
// mechanism is active and computes their deduplication fingerprints.
package sms

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Message is the single internal shape every entry point (live stream,
// background stream, historical scan) normalizes into.
type Message struct {
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// Fingerprint digests (sender, body, timestamp) into a stable hex string.
// Pure and deterministic; repeat deliveries of the identical message collapse
// to one value. Millisecond precision, so a delivery mechanism that reports a
// drifted timestamp for the same physical SMS produces a different
// fingerprint — the store's uniqueness check is therefore best-effort.
func (m Message) Fingerprint() string {
	joined := strings.Join([]string{
		m.Sender,
		m.Body,
		strconv.FormatInt(m.ReceivedAt.UnixMilli(), 10),
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", sum[:])
}

// SenderMatcher pre-filters messages to the known provider sender ids.
type SenderMatcher struct {
	re *regexp.Regexp
}

// NewSenderMatcher compiles the provider sender pattern.
func NewSenderMatcher(pattern string) (*SenderMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("sender pattern: %w", err)
	}
	return &SenderMatcher{re: re}, nil
}

// Match reports whether the sender id belongs to the provider.
func (s *SenderMatcher) Match(sender string) bool {
	return s.re.MatchString(strings.TrimSpace(sender))
}
