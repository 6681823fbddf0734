package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
)

const (
	highAmountPoints = 30
	nightPoints      = 20
	velocityPoints   = 40

	velocityThreshold = 5
	velocityWindow    = time.Hour

	// Scores strictly above this are flagged.
	flagThreshold = 70
	maxRiskScore  = 100
)

var highAmountThreshold = decimal.NewFromInt(10_000)

// HistoryCounter is the read-only history query the scorer depends on.
type HistoryCounter interface {
	CountSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)
}

type RiskService struct {
	history HistoryCounter
	logger  *slog.Logger
}

func NewRiskService(history HistoryCounter, logger *slog.Logger) *RiskService {
	return &RiskService{
		history: history,
		logger:  logger,
	}
}

// WithHistory returns a scorer reading history from h, typically a repository
// bound to an open unit of work.
func (s *RiskService) WithHistory(h HistoryCounter) *RiskService {
	return &RiskService{
		history: h,
		logger:  s.logger,
	}
}

// Score rates a posting that has not been recorded yet and derives its
// status. It has no side effects.
func (s *RiskService) Score(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, timestamp time.Time) (int, domain.TransactionStatus, error) {
	recent, err := s.history.CountSince(ctx, accountID, timestamp.Add(-velocityWindow))
	if err != nil {
		return 0, "", err
	}

	if amount.GreaterThan(highAmountThreshold) {
		s.logger.Debug("Risk +30: high amount", "account_id", accountID, "amount", amount)
	}
	if isNightHour(timestamp) {
		s.logger.Debug("Risk +20: night transaction", "account_id", accountID, "hour", timestamp.Hour())
	}
	if recent >= velocityThreshold {
		s.logger.Warn("Risk +40: high transaction velocity", "account_id", accountID, "recent_transactions", recent)
	}

	score := ScoreSignals(amount, timestamp, recent)
	return score, DetermineStatus(score), nil
}

// ScoreSignals is the additive heuristic over an already known count of the
// account's transactions in the hour before timestamp.
func ScoreSignals(amount decimal.Decimal, timestamp time.Time, recentCount int) int {
	score := 0
	if amount.GreaterThan(highAmountThreshold) {
		score += highAmountPoints
	}
	if isNightHour(timestamp) {
		score += nightPoints
	}
	if recentCount >= velocityThreshold {
		score += velocityPoints
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score
}

func DetermineStatus(riskScore int) domain.TransactionStatus {
	if riskScore > flagThreshold {
		return domain.TransactionFlagged
	}
	return domain.TransactionCompleted
}

// isNightHour reports 23:00 through 05:59 in the timestamp's own location.
func isNightHour(t time.Time) bool {
	h := t.Hour()
	return h == 23 || h < 6
}
