package application

import (
	"context"
	"fmt"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
)

// Emit appends events to the outbox. Call it inside WithinTx so the records
// commit or roll back with the state change that produced them.
func Emit(ctx context.Context, store domoutbox.Store, ids IDGenerator, events ...domoutbox.Event) error {
	if store == nil || len(events) == 0 {
		return nil
	}
	records := make([]domoutbox.Record, 0, len(events))
	for _, e := range events {
		rec, err := domoutbox.NewRecord(ids.NewID(), e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := store.Append(ctx, records...); err != nil {
		return fmt.Errorf("outbox: append: %w", err)
	}
	return nil
}
