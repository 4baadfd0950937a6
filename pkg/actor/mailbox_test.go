package actor

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func noWait(<-chan struct{}) error {
	return ErrTimeout
}

func accept(msg Message) (Verdict, error) {
	return Accept, nil
}

func acceptInts(msg Message) (Verdict, error) {
	if _, ok := msg.(int); ok {
		return Accept, nil
	}
	return Skip, nil
}

func drain(t *testing.T, m *Mailbox) []Message {
	var msgs []Message
	for {
		msg, err := m.scan(accept, noWait)
		if errors.Is(err, ErrTimeout) {
			return msgs
		}
		assert.NilError(t, err)
		msgs = append(msgs, msg)
	}
}

func TestMailboxOrder(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	for i := 0; i < 5; i++ {
		assert.NilError(t, m.Send(i))
	}
	assert.Equal(t, m.Len(), 5)
	assert.DeepEqual(t, drain(t, m), []Message{0, 1, 2, 3, 4})
	assert.Equal(t, m.Len(), 0)
}

func TestMailboxSelectiveReceivePreservesOrder(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	for _, msg := range []Message{"a", 1, "b", 2} {
		assert.NilError(t, m.Send(msg))
	}

	msg, err := m.scan(acceptInts, noWait)
	assert.NilError(t, err)
	assert.Equal(t, msg, 1)
	assert.DeepEqual(t, m.Snapshot(), []Message{"a", "b", 2})
	assert.DeepEqual(t, drain(t, m), []Message{"a", "b", 2})
}

func TestMailboxConsumeContinuesScan(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	for _, msg := range []Message{"drop", "keep", 7} {
		assert.NilError(t, m.Send(msg))
	}
	msg, err := m.scan(func(msg Message) (Verdict, error) {
		switch msg {
		case "drop":
			return Consume, nil
		case 7:
			return Accept, nil
		}
		return Skip, nil
	}, noWait)
	assert.NilError(t, err)
	assert.Equal(t, msg, 7)
	assert.DeepEqual(t, m.Snapshot(), []Message{"keep"})
}

func TestMailboxScanErrorRemovesMessage(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	assert.NilError(t, m.Send("bad"))
	assert.NilError(t, m.Send("good"))
	boom := errors.New("boom")
	_, err := m.scan(func(Message) (Verdict, error) { return Skip, boom }, noWait)
	assert.Assert(t, errors.Is(err, boom))
	assert.DeepEqual(t, m.Snapshot(), []Message{"good"})
}

func TestMailboxNestedScan(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	for _, msg := range []Message{"outer", 1, "x", 2} {
		assert.NilError(t, m.Send(msg))
	}

	var nested []Message
	msg, err := m.scan(func(msg Message) (Verdict, error) {
		if msg != "outer" {
			return Skip, nil
		}
		// The entry being examined is hidden from the nested scans.
		for i := 0; i < 2; i++ {
			inner, err := m.scan(acceptInts, noWait)
			if err != nil {
				return Skip, err
			}
			nested = append(nested, inner)
		}
		return Skip, nil
	}, noWait)
	assert.Assert(t, errors.Is(err, ErrTimeout))
	assert.Assert(t, msg == nil)
	assert.DeepEqual(t, nested, []Message{1, 2})
	assert.DeepEqual(t, m.Snapshot(), []Message{"outer", "x"})

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, m.queue.Len(), 2)
	assert.Equal(t, m.tombstones, 0)
}

func TestMailboxWaitResumesAfterCursor(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	assert.NilError(t, m.Send("a"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Send("b")
		_ = m.Send(3)
	}()

	waits := 0
	msg, err := m.scan(acceptInts, func(notify <-chan struct{}) error {
		waits++
		select {
		case <-notify:
			return nil
		case <-time.After(time.Second):
			return ErrTimeout
		}
	})
	assert.NilError(t, err)
	assert.Equal(t, msg, 3)
	assert.Assert(t, waits >= 1)
	assert.DeepEqual(t, m.Snapshot(), []Message{"a", "b"})
}

func TestMailboxOverflowThrow(t *testing.T) {
	m := NewMailbox(t.Name(), MailboxConfig{Capacity: 2, Policy: Throw})
	assert.NilError(t, m.Send(1))
	assert.NilError(t, m.Send(2))
	assert.Assert(t, errors.Is(m.Send(3), ErrQueueCapacityExceeded))
	assert.DeepEqual(t, m.Snapshot(), []Message{1, 2})
}

func TestMailboxOverflowDrop(t *testing.T) {
	newest := NewMailbox(t.Name(), MailboxConfig{Capacity: 2, Policy: DropNewest})
	oldest := NewMailbox(t.Name(), MailboxConfig{Capacity: 2, Policy: DropOldest})
	for i := 1; i <= 4; i++ {
		assert.NilError(t, newest.Send(i))
		assert.NilError(t, oldest.Send(i))
	}
	assert.DeepEqual(t, newest.Snapshot(), []Message{1, 2})
	assert.DeepEqual(t, oldest.Snapshot(), []Message{3, 4})
}

func TestMailboxDropOldestDuringScan(t *testing.T) {
	m := NewMailbox(t.Name(), MailboxConfig{Capacity: 2, Policy: DropOldest})
	assert.NilError(t, m.Send("a"))
	assert.NilError(t, m.Send("b"))

	msg, err := m.scan(func(msg Message) (Verdict, error) {
		if msg == "a" {
			// "a" is in flight, so "b" is the oldest entry that can be dropped.
			assert.NilError(t, m.Send("c"))
			return Skip, nil
		}
		return Accept, nil
	}, noWait)
	assert.NilError(t, err)
	assert.Equal(t, msg, "c")
	assert.DeepEqual(t, m.Snapshot(), []Message{"a"})
}

func TestMailboxOverflowBlock(t *testing.T) {
	cfg := MailboxConfig{
		Capacity:      1,
		Policy:        Block,
		BlockRetries:  3,
		BlockInterval: time.Millisecond,
	}

	m := NewMailbox("full", cfg)
	assert.NilError(t, m.Send(1))
	err := m.Send(2)
	var blocked *BlockedSendError
	assert.Assert(t, errors.As(err, &blocked))
	assert.Equal(t, blocked.Target, "full")
	// The first offer and three retries.
	assert.Equal(t, blocked.Attempts, uint64(4))
	assert.Assert(t, errors.Is(err, ErrQueueCapacityExceeded))

	cfg.BlockRetries = 0
	m = NewMailbox("no-retries", cfg)
	assert.NilError(t, m.Send(1))
	assert.Assert(t, errors.As(m.Send(2), &blocked))
	assert.Equal(t, blocked.Attempts, uint64(1))

	cfg.BlockRetries = 100
	m = NewMailbox("draining", cfg)
	assert.NilError(t, m.Send(1))
	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = m.scan(accept, noWait)
	}()
	assert.NilError(t, m.Send(2))
	assert.DeepEqual(t, m.Snapshot(), []Message{2})
}

func TestMailboxClosedDropsMessages(t *testing.T) {
	m := NewMailbox(t.Name(), DefaultMailboxConfig())
	assert.NilError(t, m.Send(1))
	assert.DeepEqual(t, m.close(), []Message{1})
	assert.NilError(t, m.Send(2))
	assert.Equal(t, m.Len(), 0)
}

func TestOverflowPolicyText(t *testing.T) {
	var p OverflowPolicy
	assert.NilError(t, p.UnmarshalText([]byte("drop_oldest")))
	assert.Equal(t, p, DropOldest)
	text, err := Block.MarshalText()
	assert.NilError(t, err)
	assert.Equal(t, string(text), "block")
	assert.ErrorContains(t, p.UnmarshalText([]byte("lossy")), "unknown mailbox overflow policy")
}
