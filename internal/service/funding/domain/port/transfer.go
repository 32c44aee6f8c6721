package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferStatus is the banking API's verdict on one transfer attempt.
type TransferStatus string

const (
	TransferStatusSucceeded TransferStatus = "SUCCEEDED"
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusFailed    TransferStatus = "FAILED"
)

type TransferRequest struct {
	IdempotencyKey string
	SourceAccount  string
	DestAccount    string
	Amount         decimal.Decimal
	Memo           string
}

type TransferResult struct {
	Status TransferStatus
	Reason string
}

// TransferGateway is the external banking API, treated as a black box.
// Network failures and timeouts surface as errors wrapping
// domain.ErrTransferTransient; an explicit FAILED result is a permanent
// rejection that must not be retried.
type TransferGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}
