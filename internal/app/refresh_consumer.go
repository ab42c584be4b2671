package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finmind/banksync-service/internal/domain"
)

// Refresher is the slice of BankSyncService the queue consumer and the cron job need.
type Refresher interface {
	RefreshConnection(ctx context.Context, userID string, connectionID uuid.UUID) (*domain.SyncLog, error)
}

// RefreshRequestConsumer turns bank_sync.refresh.requested messages into refreshes.
type RefreshRequestConsumer struct {
	refresher Refresher
	timeout   time.Duration
}

func NewRefreshRequestConsumer(refresher Refresher, syncTimeout time.Duration) *RefreshRequestConsumer {
	return &RefreshRequestConsumer{refresher: refresher, timeout: syncTimeout + 30*time.Second}
}

// HandleMessage acks everything it cannot act on. Only infrastructure failures
// return false, and the consumer drops those instead of requeueing them.
func (c *RefreshRequestConsumer) HandleMessage(ctx context.Context, body []byte) bool {
	var event domain.RefreshRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=refresh_consumer msg=\"failed to unmarshal payload\" err=%v", err)
		return true
	}

	connectionID, err := uuid.Parse(strings.TrimSpace(event.ConnectionID))
	if err != nil || strings.TrimSpace(event.UserID) == "" {
		log.Printf("level=warn component=refresh_consumer msg=\"invalid refresh request\" connection_id=%q user_id=%q", event.ConnectionID, event.UserID)
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry, err := c.refresher.RefreshConnection(ctx, strings.TrimSpace(event.UserID), connectionID)
	switch {
	case err == nil:
		log.Printf("level=info component=refresh_consumer msg=\"refresh finished\" connection_id=%s status=%s imported=%d", connectionID, entry.Status, entry.RecordsImported)
		return true
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrUnknownProvider), errors.Is(err, domain.ErrSyncInProgress):
		log.Printf("level=info component=refresh_consumer msg=\"refresh skipped\" connection_id=%s reason=%q", connectionID, err.Error())
		return true
	default:
		log.Printf("level=error component=refresh_consumer msg=\"refresh failed\" connection_id=%s err=%v", connectionID, err)
		return false
	}
}
