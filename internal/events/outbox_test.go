package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "account:acct-1", EventAccountRegistered, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Publish(context.Background(), "account:acct-1", AccountRegisteredV1{AccountID: "acct-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "event_type", "payload", "created_at"}).
		AddRow(id, "account:acct-1", EventAccountRegistered, []byte(`{"event_type":"account.registered.v1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].Aggregate != "account:acct-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type fakeSource struct {
	entries   []OutboxEntry
	delivered []uuid.UUID
}

func (f *fakeSource) FetchPending(context.Context, int32) ([]OutboxEntry, error) {
	return f.entries, nil
}

func (f *fakeSource) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	f.delivered = append(f.delivered, id)
	return true, nil
}

func TestDelivererMarksOnlySuccessfulEntries(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	src := &fakeSource{entries: []OutboxEntry{{ID: good, Type: "a"}, {ID: bad, Type: "b"}}}
	handler := DeliveryHandlerFunc(func(_ context.Context, e OutboxEntry) error {
		if e.ID == bad {
			return errors.New("downstream unavailable")
		}
		return nil
	})

	newDeliverer(src, handler, nil).drain(context.Background())

	if len(src.delivered) != 1 || src.delivered[0] != good {
		t.Fatalf("unexpected delivered set: %v", src.delivered)
	}
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	d := newDeliverer(src, FanOut(), nil).WithInterval(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}
}

func TestFanOutJoinsErrors(t *testing.T) {
	var calls int
	ok := DeliveryHandlerFunc(func(context.Context, OutboxEntry) error { calls++; return nil })
	errA := errors.New("a")
	failing := DeliveryHandlerFunc(func(context.Context, OutboxEntry) error { calls++; return errA })

	err := FanOut(ok, nil, failing, ok).Handle(context.Background(), OutboxEntry{})
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected every handler to run, got %d", calls)
	}
}
