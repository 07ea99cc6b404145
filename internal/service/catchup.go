package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaledger/pesaledger/internal/database/repository"
	"github.com/pesaledger/pesaledger/internal/sms"
)

// Scanner closes the gap between the newest locally-known fingerprinted
// transaction and current provider message history. Run once at startup and
// on demand.
type Scanner struct {
	Transactions *repository.TransactionRepo
	Inbox        sms.Inbox
	Pipeline     *Pipeline
	Lookback     time.Duration // watermark fallback when the ledger has no fingerprinted rows
	Log          zerolog.Logger
}

// ScanResult summarizes one catch-up pass.
type ScanResult struct {
	Scanned    int
	Created    int
	Duplicates int
	Skipped    int
}

// Run determines the watermark, replays everything strictly newer through the
// live classification path in ascending order, and never aborts on a single
// bad message. Ascending order keeps date-ordered running balances sensible
// while the scan is in flight; correctness does not depend on it because the
// fingerprint gate, not arrival order, prevents double-creation.
func (s *Scanner) Run(ctx context.Context) (ScanResult, error) {
	watermark, err := s.watermark(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	msgs, err := s.Inbox.Recent(ctx, watermark)
	if err != nil {
		return ScanResult{}, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt) })

	var res ScanResult
	for _, msg := range msgs {
		res.Scanned++
		out, err := s.Pipeline.Process(ctx, msg)
		if err != nil {
			s.Log.Warn().Err(err).Time("received_at", msg.ReceivedAt).
				Msg("catch-up: message failed, continuing")
			res.Skipped++
			continue
		}
		switch out.Outcome {
		case OutcomeCreated:
			res.Created++
		case OutcomeDuplicate:
			res.Duplicates++
		default:
			res.Skipped++
		}
	}
	s.Log.Info().Int("scanned", res.Scanned).Int("created", res.Created).
		Int("duplicates", res.Duplicates).Msg("catch-up scan complete")
	return res, nil
}

func (s *Scanner) watermark(ctx context.Context) (time.Time, error) {
	newest, err := s.Transactions.NewestFingerprinted(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if newest != nil {
		return newest.EffectiveDate, nil
	}
	return time.Now().UTC().Add(-s.Lookback), nil
}
