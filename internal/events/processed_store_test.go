package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("welcome_email", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "welcome_email", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("welcome_email", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "welcome_email", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("welcome_email", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "welcome_email", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type memoryTracker map[string]bool

func (m memoryTracker) AlreadyProcessed(_ context.Context, consumer, id string) (bool, error) {
	return m[consumer+"/"+id], nil
}

func (m memoryTracker) MarkProcessed(_ context.Context, consumer, id string) (bool, error) {
	key := consumer + "/" + id
	if m[key] {
		return false, nil
	}
	m[key] = true
	return true, nil
}

func TestIdempotentSkipsRedelivery(t *testing.T) {
	tracker := memoryTracker{}
	var calls int
	fail := true
	h := Idempotent(tracker, "welcome_email", DeliveryHandlerFunc(func(context.Context, OutboxEntry) error {
		calls++
		if fail {
			return errors.New("smtp down")
		}
		return nil
	}))
	entry := OutboxEntry{ID: uuid.New()}

	if err := h.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	fail = false
	if err := h.Handle(context.Background(), entry); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if err := h.Handle(context.Background(), entry); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}
