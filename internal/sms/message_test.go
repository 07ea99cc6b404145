package sms

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 2, 12, 12, 0, 123000000, time.UTC)
	a := Message{Sender: "MPESA", Body: "Ksh100.00 received", ReceivedAt: at}
	b := Message{Sender: "MPESA", Body: "Ksh100.00 received", ReceivedAt: at}
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Len(t, a.Fingerprint(), 64)
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 2, 12, 12, 0, 0, time.UTC)
	base := Message{Sender: "MPESA", Body: "body", ReceivedAt: at}

	otherSender := base
	otherSender.Sender = "MPESB"
	otherBody := base
	otherBody.Body = "body!"
	otherTime := base
	otherTime.ReceivedAt = at.Add(time.Millisecond)

	seen := map[string]bool{base.Fingerprint(): true}
	for _, m := range []Message{otherSender, otherBody, otherTime} {
		fp := m.Fingerprint()
		require.False(t, seen[fp], "collision for %+v", m)
		seen[fp] = true
	}
}

func TestSenderMatcher(t *testing.T) {
	t.Parallel()
	m, err := NewSenderMatcher("^MPESA$")
	require.NoError(t, err)

	require.True(t, m.Match("MPESA"))
	require.True(t, m.Match("  MPESA  "))
	require.False(t, m.Match("MPESA-PROMO"))
	require.False(t, m.Match("BANKCO"))
}

func TestJSONLStreamDropsMalformedLines(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		`{"sender":"MPESA","body":"first","timestamp":1717329120000}`,
		`not json at all`,
		`{"sender":"MPESA","body":"second","timestamp":1717329180000}`,
	}, "\n")

	s := NewJSONLStream(strings.NewReader(input))
	defer s.Close()

	var got []Message
	for msg := range s.Messages() {
		got = append(got, msg)
	}
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Body)
	require.Equal(t, "second", got[1].Body)
	require.Equal(t, time.UnixMilli(1717329120000).UTC(), got[0].ReceivedAt)
}

func TestSliceInboxRecentFiltersAndOrders(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	inbox := &SliceInbox{Msgs: []Message{
		{Body: "oldest", ReceivedAt: base},
		{Body: "newest", ReceivedAt: base.Add(2 * time.Hour)},
		{Body: "middle", ReceivedAt: base.Add(time.Hour)},
	}}

	got, err := inbox.Recent(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, got, 2) // the boundary message itself is excluded
	require.Equal(t, "newest", got[0].Body)
	require.Equal(t, "middle", got[1].Body)
}
