package infrastructure

import (
	"context"
	"fmt"
	"net/http"

	"cinemoa/internal/pkg/httpclient"
	"cinemoa/internal/service/funding/domain"
	"cinemoa/internal/service/funding/domain/port"
)

// HTTPTransferGateway calls the external banking API. The API is a black
// box: this adapter only classifies its answers into the engine's
// transient/permanent taxonomy.
type HTTPTransferGateway struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPTransferGateway(client *httpclient.Client, baseURL string) *HTTPTransferGateway {
	return &HTTPTransferGateway{client: client, baseURL: baseURL}
}

type transferRequestBody struct {
	SourceAccount string `json:"sourceAccount"`
	DestAccount   string `json:"destAccount"`
	Amount        string `json:"amount"`
	Memo          string `json:"memo"`
}

type transferResponseBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (g *HTTPTransferGateway) Transfer(ctx context.Context, req port.TransferRequest) (port.TransferResult, error) {
	body := transferRequestBody{
		SourceAccount: req.SourceAccount,
		DestAccount:   req.DestAccount,
		Amount:        req.Amount.StringFixed(2),
		Memo:          req.Memo,
	}
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}

	var resp transferResponseBody
	status, err := g.client.PostJSON(ctx, g.baseURL+"/v1/transfers", headers, body, &resp)
	if err != nil {
		// Connection refused, DNS, timeout: retryable.
		return port.TransferResult{}, fmt.Errorf("%w: %v", domain.ErrTransferTransient, err)
	}

	switch {
	case status >= http.StatusInternalServerError:
		return port.TransferResult{}, fmt.Errorf("%w: banking api returned %d", domain.ErrTransferTransient, status)
	case status >= http.StatusBadRequest:
		// The bank understood and refused; retrying will not change its mind.
		return port.TransferResult{Status: port.TransferStatusFailed, Reason: fmt.Sprintf("banking api rejected request (%d): %s", status, resp.Reason)}, nil
	}

	switch resp.Status {
	case string(port.TransferStatusSucceeded):
		return port.TransferResult{Status: port.TransferStatusSucceeded}, nil
	case string(port.TransferStatusFailed):
		return port.TransferResult{Status: port.TransferStatusFailed, Reason: resp.Reason}, nil
	default:
		return port.TransferResult{Status: port.TransferStatusPending, Reason: resp.Reason}, nil
	}
}
