// Package calendar is the external calendar collaborator. Token
// acquisition and refresh happen upstream; every call receives the
// access token supplied with the current turn.
package calendar

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Event 待同步的日历事件 / Event is one event to push to the external calendar.
// Date is "2006-01-02"; Time is "15:04" or "" for an all-day event.
type Event struct {
	Title           string
	Description     string
	Location        string
	Date            string
	Time            string
	DurationMinutes int
	Attendees       []string
	Timezone        string
}

// Provider inserts and deletes events on the external calendar.
type Provider interface {
	Insert(ctx context.Context, accessToken string, ev Event) (string, error)
	Delete(ctx context.Context, accessToken, eventID string) error
}

// BatchResult tallies per-event outcomes of a bulk deletion.
type BatchResult struct {
	Deleted []string
	Failed  map[string]string
}

// DeleteBatch 以固定并发宽度批量删除外部事件（尊重限流）
// DeleteBatch deletes events with a fixed concurrency width to respect
// provider rate limits. Failures are collected, never propagated.
func DeleteBatch(ctx context.Context, p Provider, accessToken string, eventIDs []string, width int) BatchResult {
	result := BatchResult{Failed: map[string]string{}}
	if len(eventIDs) == 0 {
		return result
	}
	if width <= 0 {
		width = 5
	}

	type outcome struct {
		id  string
		err error
	}
	outcomes := make([]outcome, len(eventIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i, id := range eventIDs {
		g.Go(func() error {
			outcomes[i] = outcome{id: id, err: p.Delete(gctx, accessToken, id)}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			result.Failed[o.id] = o.err.Error()
			continue
		}
		result.Deleted = append(result.Deleted, o.id)
	}
	return result
}
