package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaledger/pesaledger/internal/database"
	"github.com/pesaledger/pesaledger/internal/database/repository"
	"github.com/pesaledger/pesaledger/internal/sms"
)

// Toggles exposes the user-facing switches the core consults but does not own.
type Toggles interface {
	SyncEnabled() bool
	AutoCategorize() bool
	ExcludeFromWeekly() bool
}

// Outcome says what the pipeline did with one message.
type Outcome int

const (
	OutcomeIgnored   Outcome = iota // sender not a known provider id
	OutcomeNoMatch                  // no rule matched; not an error
	OutcomeDropped                  // shape matched but extraction failed
	OutcomeDuplicate                // fingerprint already present; no-op
	OutcomeCreated
)

// ProcessResult reports the outcome of one classification attempt.
type ProcessResult struct {
	Outcome       Outcome
	Rule          string
	TransactionID int64
}

// Pipeline turns one normalized inbound message into at most one transaction.
// All three ingestion entry points (live stream, background stream, catch-up
// scan) feed the same Process method.
type Pipeline struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Accounts     *repository.AccountRepo
	Categorizer  *Categorizer
	Sender       *sms.SenderMatcher
	Toggles      Toggles
	Location     *time.Location
	Log          zerolog.Logger

	wallets wallets
	rules   []rule
}

// NewPipeline wires the classifier. walletName/businessWallet/cashWallet are
// the configured display names the rules map message vocabulary onto.
func NewPipeline(db *sql.DB, txRepo *repository.TransactionRepo, acctRepo *repository.AccountRepo,
	cat *Categorizer, sender *sms.SenderMatcher, toggles Toggles, loc *time.Location,
	walletName, businessWallet, cashWallet string, log zerolog.Logger) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		DB:           db,
		Transactions: txRepo,
		Accounts:     acctRepo,
		Categorizer:  cat,
		Sender:       sender,
		Toggles:      toggles,
		Location:     loc,
		Log:          log,
		wallets:      wallets{Primary: walletName, Business: businessWallet, Cash: cashWallet},
		rules:        classificationRules(),
	}
}

// Process classifies one message. Unrecognized senders and shapes are normal
// no-ops; extraction failures drop the message with a warning; only a store
// failure returns an error, and in that case no balance delta was applied.
func (p *Pipeline) Process(ctx context.Context, msg sms.Message) (ProcessResult, error) {
	if !p.Sender.Match(msg.Sender) {
		return ProcessResult{Outcome: OutcomeIgnored}, nil
	}

	fp := msg.Fingerprint()

	// Primary duplicate gate; the unique index below it catches races.
	existing, err := p.Transactions.FindByFingerprint(ctx, fp)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil {
		p.Log.Info().Str("fingerprint", fp[:12]).Msg("duplicate message suppressed")
		return ProcessResult{Outcome: OutcomeDuplicate, TransactionID: existing.ID}, nil
	}

	intent, ruleName, err := p.classify(msg)
	if err == ErrNoMatch {
		p.Log.Info().Str("sender", msg.Sender).Msg("message matched no rule")
		return ProcessResult{Outcome: OutcomeNoMatch}, nil
	}
	if err != nil {
		p.Log.Warn().Err(err).Str("rule", ruleName).Msg("dropping message: extraction failed")
		return ProcessResult{Outcome: OutcomeDropped, Rule: ruleName}, nil
	}

	var txID int64
	var inserted bool
	err = database.WithTx(p.DB, func(tx *sql.Tx) error {
		source, err := p.walletTx(ctx, tx, intent.SourceWallet, msg.Sender)
		if err != nil {
			return err
		}

		row := repository.Transaction{
			AccountID:     source.ID,
			AmountCents:   intent.AmountCents,
			FeeCents:      intent.FeeCents,
			Kind:          intent.Kind,
			Description:   intent.Description,
			EffectiveDate: intent.EffectiveDate,
			Status:        repository.StatusUncategorized,
			Fingerprint:   &fp,
		}
		txID, inserted, err = p.Transactions.InsertIgnoreTx(ctx, tx, row)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			// Another execution context won the race; leave balances alone.
			return nil
		}

		if err := p.Accounts.ApplyDelta(ctx, tx, source.ID, row.SignedDeltaCents()); err != nil {
			return fmt.Errorf("apply source delta: %w", err)
		}

		// TRANSFER and WITHDRAW are single-row: the destination side exists
		// only as a balance delta, never as its own transaction.
		if intent.DestWallet != "" {
			dest, err := p.walletTx(ctx, tx, intent.DestWallet, "")
			if err != nil {
				return err
			}
			if err := p.Accounts.ApplyDelta(ctx, tx, dest.ID, intent.AmountCents); err != nil {
				return fmt.Errorf("apply destination delta: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return ProcessResult{Rule: ruleName}, err
	}
	if !inserted {
		return ProcessResult{Outcome: OutcomeDuplicate, Rule: ruleName, TransactionID: txID}, nil
	}

	if intent.CategoryItem != "" && p.Toggles.AutoCategorize() {
		if err := p.Categorizer.AutoCategorize(ctx, txID, intent.CategoryItem); err != nil {
			p.Log.Warn().Err(err).Int64("transaction", txID).Msg("auto-categorize failed")
		}
	}

	p.Log.Info().Str("rule", ruleName).Int64("transaction", txID).
		Int64("amount_cents", intent.AmountCents).Msg("transaction recorded")
	return ProcessResult{Outcome: OutcomeCreated, Rule: ruleName, TransactionID: txID}, nil
}

// Consume drains a live stream through Process until the stream closes or the
// context is cancelled. A message already taken from the stream is always
// processed to completion so a half-applied write is never torn down.
func (p *Pipeline) Consume(ctx context.Context, stream sms.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream.Messages():
			if !ok {
				return
			}
			if _, err := p.Process(ctx, msg); err != nil {
				p.Log.Error().Err(err).Str("sender", msg.Sender).Msg("classification failed")
			}
		}
	}
}

func (p *Pipeline) classify(msg sms.Message) (Intent, string, error) {
	lower := strings.ToLower(msg.Body)
	for _, r := range p.rules {
		if !r.match(lower) {
			continue
		}
		intent, err := r.extract(msg.Body, p.wallets, p.Location)
		if err != nil {
			return Intent{}, r.name, err
		}
		return intent, r.name, nil
	}
	return Intent{}, "", ErrNoMatch
}

// walletTx looks up a wallet by name inside the transaction, lazily creating
// it when a classified message references one we have not seen.
func (p *Pipeline) walletTx(ctx context.Context, tx *sql.Tx, name, senderID string) (*repository.Account, error) {
	acct, err := p.Accounts.GetByNameTx(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("wallet %q: %w", name, err)
	}
	if acct != nil {
		return acct, nil
	}
	id, err := p.Accounts.CreateTx(ctx, tx, repository.Account{Name: name, SenderID: senderID})
	if err != nil {
		return nil, fmt.Errorf("create wallet %q: %w", name, err)
	}
	return &repository.Account{ID: id, Name: name, SenderID: senderID}, nil
}
