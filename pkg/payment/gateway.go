package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/creatorhub/backend/pkg/money"
	"github.com/google/uuid"
)

// ErrDeclined is returned when the provider refuses a charge.
var ErrDeclined = errors.New("payment declined")

// Gateway charges an external instrument before a wallet top-up is credited.
type Gateway interface {
	// Charge collects amount for userID and returns the provider's
	// transaction id.
	Charge(ctx context.Context, userID string, amount money.Amount, reference string) (string, error)
}

// TransactionStatus constants
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction is a charge the mock gateway has seen.
type Transaction struct {
	ID        string
	UserID    string
	Reference string
	Amount    money.Amount
	Status    string
}

// MockGateway approves every charge. Set Decline to refuse them instead.
type MockGateway struct {
	mu           sync.Mutex
	Decline      bool
	transactions []Transaction
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) Charge(ctx context.Context, userID string, amount money.Amount, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx := Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Reference: reference,
		Amount:    amount,
		Status:    StatusSuccess,
	}
	if g.Decline {
		tx.Status = StatusFailed
	}
	g.transactions = append(g.transactions, tx)

	if g.Decline {
		return "", ErrDeclined
	}
	return tx.ID, nil
}

// Transactions returns a copy of every charge attempt.
func (g *MockGateway) Transactions() []Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Transaction, len(g.transactions))
	copy(out, g.transactions)
	return out
}
