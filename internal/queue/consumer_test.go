package queue

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/batch-admission/internal/event"
)

func TestConsumerHandleWritesLines(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{LogDir: dir}
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	settled, err := json.Marshal(envelope{Event: event.NamePaymentSettled, Data: event.PaymentSettled{
		PaymentID: 7, TranID: "ADM-00aa", ApplicationID: 3, BatchID: 1, AmountMinor: 462500, Currency: "BDT", SettledAt: at,
	}})
	require.NoError(t, err)
	recon, err := json.Marshal(envelope{Event: event.NameReconciliationRequired, Data: event.ReconciliationRequired{
		CaseID: 2, TranID: "ADM-00bb", ApplicationID: 4, BatchID: 1, Reason: "CAPACITY_RACE", CreatedAt: at,
	}})
	require.NoError(t, err)

	require.NoError(t, c.Handle(settled))
	require.NoError(t, c.Handle(recon))

	b, err := os.ReadFile(filepath.Join(dir, "settlement.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"[2026-03-01T09:30:00Z] Payment settled | tran_id=ADM-00aa | payment_id=7 | application_id=3 | batch_id=1 | amount=4625.00 BDT\n"+
			"[2026-03-01T09:30:00Z] Reconciliation required | case_id=2 | tran_id=ADM-00bb | application_id=4 | batch_id=1 | reason=CAPACITY_RACE\n",
		string(b))
}

func TestConsumerHandleRejectsGarbage(t *testing.T) {
	c := &Consumer{LogDir: t.TempDir()}
	assert.Error(t, c.Handle([]byte("not json")))
	assert.Error(t, c.Handle([]byte(`{"event":"something.else","data":{}}`)))
}

func TestPublisherRoutes(t *testing.T) {
	p := NewPublisher("amqp://localhost", "admission.settled", "admission.reconciliation", 0, nil)
	q, ok := p.Queue(event.NamePaymentSettled)
	assert.True(t, ok)
	assert.Equal(t, "admission.settled", q)
	q, ok = p.Queue(event.NameReconciliationRequired)
	assert.True(t, ok)
	assert.Equal(t, "admission.reconciliation", q)
	_, ok = p.Queue("other")
	assert.False(t, ok)
}

func TestPublisherGivesUpOnSilentBroker(t *testing.T) {
	// A listener that accepts and never speaks AMQP stands in for a hung
	// broker.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				close(accepted)
				return
			}
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		for conn := range accepted {
			_ = conn.Close()
		}
	})

	p := NewPublisher("amqp://guest:guest@"+ln.Addr().String()+"/", "s", "r", 100*time.Millisecond, nil)
	start := time.Now()
	err = p.Notify(context.Background(), event.PaymentSettled{TranID: "ADM-00aa"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
