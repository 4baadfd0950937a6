package actor

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// OverflowPolicy decides what happens to a message sent to a full mailbox.
type OverflowPolicy int

const (
	// Throw fails the send with ErrQueueCapacityExceeded.
	Throw OverflowPolicy = iota
	// Block retries the send with backoff and then fails it with a BlockedSendError.
	Block
	// DropOldest discards the oldest queued message to make room.
	DropOldest
	// DropNewest discards the message being sent.
	DropNewest
)

var policyNames = map[OverflowPolicy]string{
	Throw:      "throw",
	Block:      "block",
	DropOldest: "drop_oldest",
	DropNewest: "drop_newest",
}

func (p OverflowPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p OverflowPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	for policy, name := range policyNames {
		if strings.EqualFold(name, string(text)) {
			*p = policy
			return nil
		}
	}
	return errors.Errorf("unknown mailbox overflow policy: %q", string(text))
}

// MailboxConfig configures the capacity of a mailbox and what to do when it fills up.
type MailboxConfig struct {
	// Capacity bounds the number of queued messages. Zero or less is unbounded.
	Capacity int            `json:"capacity"`
	Policy   OverflowPolicy `json:"policy"`
	// BlockRetries is the number of retries after the first offer; BlockInterval is the first
	// backoff interval of the block policy.
	BlockRetries  uint64        `json:"block_retries"`
	BlockInterval time.Duration `json:"block_interval"`
}

// DefaultMailboxConfig returns an unbounded mailbox configuration.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{
		Policy:        Throw,
		BlockRetries:  10,
		BlockInterval: 5 * time.Millisecond,
	}
}

// Validate implements the check.Validatable interface.
func (c MailboxConfig) Validate() []error {
	var errs []error
	if _, ok := policyNames[c.Policy]; !ok {
		errs = append(errs, errors.Errorf("unknown mailbox overflow policy %d", c.Policy))
	}
	if c.Policy == Block && c.BlockInterval <= 0 {
		errs = append(errs, errors.New("block_interval must be positive for the block policy"))
	}
	return errs
}

// Verdict is the outcome of examining a queued message during a scan.
type Verdict int

const (
	// Skip leaves the message in the mailbox and continues the scan.
	Skip Verdict = iota
	// Consume removes the message and continues the scan.
	Consume
	// Accept removes the message and ends the scan.
	Accept
)

type (
	// scanFunc examines one message. An error ends the scan after the message is removed.
	scanFunc func(msg Message) (Verdict, error)
	// waitFunc blocks until notify fires. A non-nil error ends the scan.
	waitFunc func(notify <-chan struct{}) error
)

type envelope struct {
	msg      Message
	dead     bool
	inFlight bool
}

// Mailbox is a single-consumer, multi-producer message queue that supports selective receive.
// Scans may nest: a message handler invoked during a scan can run another scan on the same
// mailbox. Entries removed while any scan is active are tombstoned and unlinked when the outermost
// scan finishes, so the cursor of every active scan stays valid.
type Mailbox struct {
	owner string
	cfg   MailboxConfig

	mu         sync.Mutex
	queue      *list.List
	live       int
	scanning   int
	tombstones int
	closed     bool
	notify     chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox(owner string, cfg MailboxConfig) *Mailbox {
	return &Mailbox{
		owner:  owner,
		cfg:    cfg,
		queue:  list.New(),
		notify: make(chan struct{}, 1),
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Snapshot returns the queued messages in order.
func (m *Mailbox) Snapshot() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]Message, 0, m.live)
	for e := m.queue.Front(); e != nil; e = e.Next() {
		if env := e.Value.(*envelope); !env.dead {
			msgs = append(msgs, env.msg)
		}
	}
	return msgs
}

// Send adds a message to the tail of the mailbox, applying the overflow policy if it is full.
// Messages sent to a closed mailbox are dropped.
func (m *Mailbox) Send(msg Message) error {
	err := m.offer(msg, false)
	if m.cfg.Policy != Block || !errors.Is(err, ErrQueueCapacityExceeded) {
		return err
	}

	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = m.cfg.BlockInterval
	bf.MaxElapsedTime = 0
	retries := backoff.WithMaxRetries(bf, m.cfg.BlockRetries)
	for attempts := uint64(1); ; attempts++ {
		wait := retries.NextBackOff()
		if wait == backoff.Stop {
			return &BlockedSendError{Target: m.owner, Attempts: attempts}
		}
		time.Sleep(wait)
		if err := m.offer(msg, false); !errors.Is(err, ErrQueueCapacityExceeded) {
			return err
		}
	}
}

// force adds a message regardless of capacity. It is used for runtime-generated messages that
// must not be lost.
func (m *Mailbox) force(msg Message) {
	_ = m.offer(msg, true)
}

func (m *Mailbox) offer(msg Message, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	if !force && m.cfg.Capacity > 0 && m.live >= m.cfg.Capacity {
		switch m.cfg.Policy {
		case DropNewest:
			return nil
		case DropOldest:
			if !m.dropOldest() {
				return nil
			}
		default:
			return ErrQueueCapacityExceeded
		}
	}

	m.queue.PushBack(&envelope{msg: msg})
	m.live++
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *Mailbox) dropOldest() bool {
	for e := m.queue.Front(); e != nil; e = e.Next() {
		if env := e.Value.(*envelope); !env.dead && !env.inFlight {
			m.remove(e)
			return true
		}
	}
	return false
}

func (m *Mailbox) remove(e *list.Element) {
	e.Value.(*envelope).dead = true
	m.live--
	if m.scanning == 0 {
		m.queue.Remove(e)
	} else {
		m.tombstones++
	}
}

// next returns the first live entry after the cursor that is not being examined by an enclosing
// scan.
func (m *Mailbox) next(cursor *list.Element) *list.Element {
	e := m.queue.Front()
	if cursor != nil {
		e = cursor.Next()
	}
	for ; e != nil; e = e.Next() {
		if env := e.Value.(*envelope); !env.dead && !env.inFlight {
			return e
		}
	}
	return nil
}

func (m *Mailbox) beginScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning++
}

func (m *Mailbox) endScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning--
	if m.scanning > 0 || m.tombstones == 0 {
		return
	}
	for e := m.queue.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*envelope).dead {
			m.queue.Remove(e)
		}
		e = next
	}
	m.tombstones = 0
}

// scan walks the mailbox from the head, handing each message to proc. When it runs out of
// messages it waits and resumes after the last examined entry, so messages that arrive during the
// wait are seen in order.
func (m *Mailbox) scan(proc scanFunc, wait waitFunc) (Message, error) {
	m.beginScan()
	defer m.endScan()

	var cursor *list.Element
	for {
		m.mu.Lock()
		e := m.next(cursor)
		if e == nil {
			m.mu.Unlock()
			if err := wait(m.notify); err != nil {
				return nil, err
			}
			continue
		}
		env := e.Value.(*envelope)
		env.inFlight = true
		m.mu.Unlock()

		verdict, err := proc(env.msg)

		m.mu.Lock()
		env.inFlight = false
		if (err != nil || verdict != Skip) && !env.dead {
			m.remove(e)
		}
		m.mu.Unlock()

		switch {
		case err != nil:
			return nil, err
		case verdict == Accept:
			return env.msg, nil
		}
		cursor = e
	}
}

// close stops the mailbox from accepting messages and returns the messages left in it.
func (m *Mailbox) close() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	msgs := make([]Message, 0, m.live)
	for e := m.queue.Front(); e != nil; e = e.Next() {
		if env := e.Value.(*envelope); !env.dead {
			msgs = append(msgs, env.msg)
		}
	}
	m.queue.Init()
	m.live, m.tombstones = 0, 0
	return msgs
}
