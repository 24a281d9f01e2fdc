package formance

import (
	"context"
	"fmt"
	"strconv"

	"tron-payout-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Hot wallets may be topped up outside the ledger, so their accounts are
// allowed to go negative.
const numscriptPayoutCompleted = `vars {
  asset $asset
  number $amount
  account $wallet
  account $order
  string $order_id
  string $tx_hash
  string $destination
  string $amount_human
  string $wallet_name
}

send [$asset $amount] (
  source = $wallet allowing unbounded overdraft
  destination = $order
)

set_tx_meta("event_type", "payout_completed")
set_tx_meta("order_id", $order_id)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("destination", $destination)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("wallet_name", $wallet_name)
`

// TransferCompleted moves the paid amount from the hot wallet account to the
// order account. The order id is the ledger reference, so replays are no-ops.
func (s *Service) TransferCompleted(ctx context.Context, order models.Order, result models.TransferResult) error {
	smallAmt := order.Amount.Shift(int32(precisionFor(order.Coin))).BigInt().String()

	postTx := shared.V2PostTransaction{
		Reference: strPtr("payout-" + order.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptPayoutCompleted,
			Vars: map[string]string{
				"asset":        formanceAsset(order.Coin),
				"amount":       smallAmt,
				"wallet":       walletAccount(result.WalletId),
				"order":        orderAccount(order.Id),
				"order_id":     order.Id,
				"tx_hash":      result.TxHash,
				"destination":  order.Destination,
				"amount_human": order.Amount.String(),
				"wallet_name":  result.WalletName,
			},
		},
	}
	if order.TransferTime != nil {
		postTx.Timestamp = order.TransferTime
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil
		}
		return fmt.Errorf("error journaling payout %s: %w", order.Id, err)
	}

	zap.L().Info("Payout journaled in Formance",
		zap.String("order_id", order.Id),
		zap.String("asset", string(order.Coin)),
		zap.String("amount", order.Amount.String()),
		zap.String("tx_hash", result.TxHash))
	return nil
}

// TransferFailed tags the order account so failed payouts are visible next
// to completed ones; no funds move.
func (s *Service) TransferFailed(ctx context.Context, order models.Order, cause error) error {
	meta := map[string]string{
		"status":      string(models.OrderFailed),
		"coin":        string(order.Coin),
		"amount":      order.Amount.String(),
		"destination": order.Destination,
		"attempts":    strconv.Itoa(order.TransferAttempts),
		"wallet_id":   order.WalletId,
	}
	if cause != nil {
		meta["last_error"] = cause.Error()
	}

	_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:      s.ledger,
		Address:     orderAccount(order.Id),
		RequestBody: meta,
	})
	if err != nil {
		return fmt.Errorf("error tagging failed payout %s: %w", order.Id, err)
	}
	return nil
}

func walletAccount(walletId string) string {
	return "wallets:" + accountSegment(walletId)
}

func orderAccount(orderId string) string {
	return "payouts:" + accountSegment(orderId)
}
