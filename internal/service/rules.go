package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pesaledger/pesaledger/internal/database/repository"
)

// Classification errors. ErrNoMatch is not a failure; ErrExtraction means a
// shape matched but the body could not be parsed and the message is dropped.
var (
	ErrNoMatch    = errors.New("no classification rule matched")
	ErrExtraction = errors.New("extraction failed")
)

// Intent is a transaction-creation intent produced by one matched rule.
type Intent struct {
	Kind          repository.Kind
	AmountCents   int64
	FeeCents      int64
	Counterparty  string
	SourceWallet  string
	DestWallet    string // balance-delta side of TRANSFER/WITHDRAW, no row of its own
	CategoryItem  string // auto-categorization hint, e.g. "Airtime"
	EffectiveDate time.Time
	Description   string
}

// wallets maps the provider's message vocabulary onto configured wallet names.
type wallets struct {
	Primary  string
	Business string
	Cash     string
}

// rule pairs a predicate over the lower-cased body with an extraction recipe.
// Rules are evaluated in order and the first match wins, so more specific
// patterns (paid-to-business) must precede the general ones (paid-to) —
// message bodies share vocabulary across kinds.
type rule struct {
	name    string
	match   func(lower string) bool
	extract func(body string, w wallets, loc *time.Location) (Intent, error)
}

func classificationRules() []rule {
	return []rule{
		{
			name:  "received",
			match: func(l string) bool { return strings.Contains(l, "received from") },
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				amount, err := extractAmount(body, reAmountReceived)
				if err != nil {
					return Intent{}, err
				}
				date, err := extractDate(body, loc)
				if err != nil {
					return Intent{}, err
				}
				who := extractGroup(body, reFromParty)
				return Intent{
					Kind:          repository.KindCredit,
					AmountCents:   amount,
					Counterparty:  who,
					SourceWallet:  w.Primary,
					EffectiveDate: date,
					Description:   "Received from " + who,
				}, nil
			},
		},
		{
			name: "paid-business",
			match: func(l string) bool {
				return strings.Contains(l, "paid to") && strings.Contains(l, "business balance")
			},
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				in, err := extractPayment(body, reAmountPaid, rePaidParty, loc, "Paid to ")
				if err != nil {
					return Intent{}, err
				}
				in.SourceWallet = w.Business
				return in, nil
			},
		},
		{
			name:  "airtime",
			match: func(l string) bool { return strings.Contains(l, "of airtime") },
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				amount, err := extractAmount(body, reAmountAirtime)
				if err != nil {
					return Intent{}, err
				}
				date, err := extractDate(body, loc)
				if err != nil {
					return Intent{}, err
				}
				return Intent{
					Kind:          repository.KindDebit,
					AmountCents:   amount,
					FeeCents:      extractFee(body),
					SourceWallet:  w.Primary,
					CategoryItem:  "Airtime",
					EffectiveDate: date,
					Description:   "Airtime purchase",
				}, nil
			},
		},
		{
			name:  "paid",
			match: func(l string) bool { return strings.Contains(l, "paid to") },
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				in, err := extractPayment(body, reAmountPaid, rePaidParty, loc, "Paid to ")
				if err != nil {
					return Intent{}, err
				}
				in.SourceWallet = w.Primary
				return in, nil
			},
		},
		{
			name:  "sent",
			match: func(l string) bool { return strings.Contains(l, "sent to") },
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				in, err := extractPayment(body, reAmountSent, reSentParty, loc, "Sent to ")
				if err != nil {
					return Intent{}, err
				}
				in.SourceWallet = w.Primary
				return in, nil
			},
		},
		{
			name: "transfer-to-business",
			match: func(l string) bool {
				return strings.Contains(l, "moved from") && strings.Contains(l, "to your business account")
			},
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				return extractTransfer(body, loc, w.Primary, w.Business)
			},
		},
		{
			name: "transfer-to-personal",
			match: func(l string) bool {
				return strings.Contains(l, "moved from your business account")
			},
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				return extractTransfer(body, loc, w.Business, w.Primary)
			},
		},
		{
			name:  "withdraw",
			match: func(l string) bool { return strings.Contains(l, "withdraw ksh") },
			extract: func(body string, w wallets, loc *time.Location) (Intent, error) {
				amount, err := extractAmount(body, reAmountWithdraw)
				if err != nil {
					return Intent{}, err
				}
				date, err := extractDate(body, loc)
				if err != nil {
					return Intent{}, err
				}
				agent := extractGroup(body, reAgentParty)
				return Intent{
					Kind:          repository.KindWithdraw,
					AmountCents:   amount,
					FeeCents:      extractFee(body),
					Counterparty:  agent,
					SourceWallet:  w.Primary,
					DestWallet:    w.Cash,
					EffectiveDate: date,
					Description:   "Withdrawal at " + agent,
				}, nil
			},
		},
	}
}

// Extraction regexes are anchored to the phrase that triggered the match so a
// stray amount elsewhere in the body (the closing balance) cannot win.
var (
	reAmountReceived = regexp.MustCompile(`(?i)ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+received from`)
	reAmountPaid     = regexp.MustCompile(`(?i)ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+paid to`)
	reAmountSent     = regexp.MustCompile(`(?i)ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+sent to`)
	reAmountAirtime  = regexp.MustCompile(`(?i)ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+of airtime`)
	reAmountMoved    = regexp.MustCompile(`(?i)ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+moved from`)
	reAmountWithdraw = regexp.MustCompile(`(?i)withdraw\s+ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	reFee            = regexp.MustCompile(`(?i)transaction cost,?\s*ksh([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	reDate           = regexp.MustCompile(`(?i)on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2})\s*([AP]M)`)
	reFromParty      = regexp.MustCompile(`(?i)received from\s+(.+?)\s+on\s+\d`)
	rePaidParty      = regexp.MustCompile(`(?i)paid to\s+(.+?)\.?\s+on\s+\d`)
	reSentParty      = regexp.MustCompile(`(?i)sent to\s+(.+?)\.?\s+on\s+\d`)
	reAgentParty     = regexp.MustCompile(`(?i)from\s+(.+?)\s+new m-pesa balance`)
)

func extractPayment(body string, amountRe, partyRe *regexp.Regexp, loc *time.Location, descPrefix string) (Intent, error) {
	amount, err := extractAmount(body, amountRe)
	if err != nil {
		return Intent{}, err
	}
	date, err := extractDate(body, loc)
	if err != nil {
		return Intent{}, err
	}
	who := extractGroup(body, partyRe)
	return Intent{
		Kind:          repository.KindDebit,
		AmountCents:   amount,
		FeeCents:      extractFee(body),
		Counterparty:  who,
		EffectiveDate: date,
		Description:   descPrefix + who,
	}, nil
}

func extractTransfer(body string, loc *time.Location, source, dest string) (Intent, error) {
	amount, err := extractAmount(body, reAmountMoved)
	if err != nil {
		return Intent{}, err
	}
	date, err := extractDate(body, loc)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		Kind:          repository.KindTransfer,
		AmountCents:   amount,
		FeeCents:      extractFee(body),
		SourceWallet:  source,
		DestWallet:    dest,
		EffectiveDate: date,
		Description:   "Moved to " + dest,
	}, nil
}

func extractAmount(body string, re *regexp.Regexp) (int64, error) {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("%w: amount not found", ErrExtraction)
	}
	return parseAmountCents(m[1])
}

// extractFee returns zero when the body carries no cost phrase; person-to-person
// credits and some bundles have no fee line.
func extractFee(body string) int64 {
	m := reFee.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	cents, err := parseAmountCents(m[1])
	if err != nil {
		return 0
	}
	return cents
}

// extractDate parses the provider's d/M/yy h:mm AM/PM effective date. A shape
// match with an unparseable date drops the whole message: a wrong-but-plausible
// date must never enter the ledger.
func extractDate(body string, loc *time.Location) (time.Time, error) {
	m := reDate.FindStringSubmatch(body)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: date not found", ErrExtraction)
	}
	raw := m[1] + " " + m[2] + " " + strings.ToUpper(m[3])
	t, err := time.ParseInLocation("2/1/06 3:04 PM", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrExtraction, raw, err)
	}
	return t.UTC(), nil
}

func parseAmountCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrExtraction, s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: negative amount %q", ErrExtraction, s)
	}
	return int64(math.Round(f * 100)), nil
}

func extractGroup(body string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
