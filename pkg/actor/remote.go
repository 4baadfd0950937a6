package actor

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoSuchActor is returned by transports when the named actor cannot be found.
var ErrNoSuchActor = errors.New("no such actor")

// Transport carries the operations of a handle to an actor outside the local system.
type Transport interface {
	Send(name string, msg Message) error
	Interrupt(name string, err error) error
	AddListener(name string, l Listener) error
	RemoveListener(name string, l Listener) error
}

// RemoteHandle is a handle to a named actor reached through a transport.
type RemoteHandle struct {
	log       *log.Entry
	name      string
	transport Transport
}

// NewRemoteHandle creates a handle to the named actor.
func NewRemoteHandle(name string, t Transport) *RemoteHandle {
	return &RemoteHandle{
		log:       log.WithField("remote", name),
		name:      name,
		transport: t,
	}
}

// Name implements Handle.
func (h *RemoteHandle) Name() string {
	return h.name
}

func (h *RemoteHandle) String() string {
	return fmt.Sprintf("remote://%s", h.name)
}

// Send implements Handle.
func (h *RemoteHandle) Send(msg Message) error {
	return errors.Wrapf(h.transport.Send(h.name, msg), "sending to %s", h)
}

// Interrupt implements Handle.
func (h *RemoteHandle) Interrupt() {
	h.ThrowIn(nil)
}

// ThrowIn implements Handle.
func (h *RemoteHandle) ThrowIn(err error) {
	if tErr := h.transport.Interrupt(h.name, err); tErr != nil {
		h.log.WithError(tErr).Warn("failed to interrupt remote actor")
	}
}

// AddListener implements Handle. If the listener cannot be registered the actor is treated as
// dead and the listener is notified immediately.
func (h *RemoteHandle) AddListener(l Listener) {
	if err := h.transport.AddListener(h.name, l); err != nil {
		l.Dead(h, err)
	}
}

// RemoveListener implements Handle.
func (h *RemoteHandle) RemoveListener(l Listener) {
	if err := h.transport.RemoveListener(h.name, l); err != nil {
		h.log.WithError(err).Debug("failed to remove listener from remote actor")
	}
}

// SystemTransport reaches the registered actors of another system in the same process.
type SystemTransport struct {
	System *System
}

func (t SystemTransport) lookup(name string) (Handle, error) {
	h := t.System.Lookup(name)
	if h == nil || !alive(h) {
		return nil, errors.Wrapf(ErrNoSuchActor, "%s in system %s", name, t.System.id)
	}
	return h, nil
}

// Send implements Transport.
func (t SystemTransport) Send(name string, msg Message) error {
	h, err := t.lookup(name)
	if err != nil {
		return err
	}
	return h.Send(msg)
}

// Interrupt implements Transport.
func (t SystemTransport) Interrupt(name string, err error) error {
	h, lErr := t.lookup(name)
	if lErr != nil {
		return lErr
	}
	if err == nil {
		h.Interrupt()
	} else {
		h.ThrowIn(err)
	}
	return nil
}

// AddListener implements Transport.
func (t SystemTransport) AddListener(name string, l Listener) error {
	h, err := t.lookup(name)
	if err != nil {
		return err
	}
	h.AddListener(l)
	return nil
}

// RemoveListener implements Transport.
func (t SystemTransport) RemoveListener(name string, l Listener) error {
	h, err := t.lookup(name)
	if err != nil {
		return err
	}
	h.RemoveListener(l)
	return nil
}
