package domain

// OperationContext tags which money-movement path hit the window guard, so
// the rejection carries an operation-specific message.
type OperationContext string

const (
	OpPayment OperationContext = "PAYMENT"
	OpRefund  OperationContext = "REFUND"
)

// ClosedMessage is the user-facing text for a guard rejection under this
// operation context.
func (o OperationContext) ClosedMessage() string {
	switch o {
	case OpPayment:
		return "the payment window for this campaign has closed"
	case OpRefund:
		return "the refund window for this campaign has closed"
	default:
		return "the campaign window has closed"
	}
}
