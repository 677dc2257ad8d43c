package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/ismaiel54/dma-fix-gateway/internal/store"
	"go.uber.org/zap"
)

// CommandLedger records which order commands were already acted on
type CommandLedger interface {
	ClaimCommand(ctx context.Context, cmd msg.OrderCmdMsg) (store.ClaimResult, error)
	CompleteCommand(ctx context.Context, eventID, status, reason string) error
}

// HandleCommand is a msg.Handler for the orders.commands topic. A command is
// sent to the venue at most once: duplicates are acknowledged without
// sending, and a failed send is recorded and not retried.
func (c *Client) HandleCommand(ctx context.Context, rec msg.Record) error {
	var cmd msg.OrderCmdMsg
	if err := json.Unmarshal(rec.Value, &cmd); err != nil {
		c.logger.Error("failed to unmarshal order command",
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
		return fmt.Errorf("%w: unmarshal order command: %v", msg.ErrPermanent, err)
	}
	if cmd.EventID == "" {
		return fmt.Errorf("%w: order command without event_id", msg.ErrPermanent)
	}

	if c.deps.Ledger != nil {
		claim, err := c.deps.Ledger.ClaimCommand(ctx, cmd)
		if err != nil {
			return fmt.Errorf("failed to claim command: %w", err)
		}
		if claim.Duplicate {
			c.logger.Info("duplicate order command skipped",
				zap.String("event_id", cmd.EventID),
				zap.String("status", claim.Status),
			)
			return nil
		}
	}

	ref, sendErr := c.dispatch(ctx, cmd)

	status, reason := store.StatusSent, ref
	if sendErr != nil {
		status, reason = store.StatusFailed, sendErr.Error()
	}
	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.CompleteCommand(ctx, cmd.EventID, status, reason); err != nil {
			c.logger.Error("failed to complete command", zap.String("event_id", cmd.EventID), zap.Error(err))
		}
	}

	if sendErr != nil {
		c.logger.Warn("order command failed",
			zap.String("event_id", cmd.EventID),
			zap.String("action", cmd.Action),
			zap.Error(sendErr),
		)
		return fmt.Errorf("%w: %v", msg.ErrPermanent, sendErr)
	}

	c.logger.Info("order command sent",
		zap.String("event_id", cmd.EventID),
		zap.String("action", cmd.Action),
		zap.String("ref", ref),
	)
	return nil
}

// dispatch sends one command and returns the client order id or request id
// it produced
func (c *Client) dispatch(ctx context.Context, cmd msg.OrderCmdMsg) (string, error) {
	switch cmd.Action {
	case msg.ActionPlace:
		side, err := fixSide(cmd.Side)
		if err != nil {
			return "", err
		}
		o, err := c.PlaceOrder(ctx, cmd.Symbol, side, cmd.Price, cmd.Qty, cmd.Account)
		if err != nil {
			return "", err
		}
		return o.ClOrdID, nil
	case msg.ActionCancel:
		return c.CancelOrder(ctx, cmd.ClOrdID)
	case msg.ActionReplace:
		return c.ReplaceOrder(ctx, cmd.ClOrdID, cmd.Price, cmd.Qty)
	case msg.ActionMassCancel:
		return c.MassCancel(ctx)
	case msg.ActionStatus:
		if cmd.ClOrdID != "" {
			return cmd.ClOrdID, c.OrderStatus(ctx, cmd.ClOrdID)
		}
		side, err := fixSide(cmd.Side)
		if err != nil {
			return "", err
		}
		return cmd.OrderID, c.OrderStatusByID(ctx, cmd.OrderID, cmd.Symbol, side)
	default:
		return "", fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func fixSide(s string) (string, error) {
	switch s {
	case "BUY":
		return fix.SideBuy, nil
	case "SELL":
		return fix.SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

func sideName(s string) string {
	switch s {
	case fix.SideBuy:
		return "BUY"
	case fix.SideSell:
		return "SELL"
	}
	return s
}
