package supervisor

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/check"
)

// RestartMode decides whether a dead child is restarted.
type RestartMode int

const (
	// Permanent children are always restarted, even after a normal exit.
	Permanent RestartMode = iota
	// Transient children are restarted only after an abnormal death.
	Transient
	// Temporary children are never restarted.
	Temporary
)

func (m RestartMode) String() string {
	switch m {
	case Permanent:
		return "permanent"
	case Transient:
		return "transient"
	case Temporary:
		return "temporary"
	default:
		return fmt.Sprintf("RestartMode(%d)", int(m))
	}
}

// Strategy decides which children are restarted when one of them dies.
type Strategy int

const (
	// OneForOne restarts only the dead child.
	OneForOne Strategy = iota
	// AllForOne stops every child and restarts the whole group.
	AllForOne
	// RestForOne stops and restarts the dead child and every child started after it.
	RestForOne
	// Escalate never restarts; the death of any child terminates the supervisor.
	Escalate
)

func (s Strategy) String() string {
	switch s {
	case OneForOne:
		return "one_for_one"
	case AllForOne:
		return "all_for_one"
	case RestForOne:
		return "rest_for_one"
	case Escalate:
		return "escalate"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// DefaultShutdownTimeout is used for children that do not set a shutdown timeout.
const DefaultShutdownTimeout = 5 * time.Second

// ChildSpec describes a supervised child.
type ChildSpec struct {
	// ID identifies the child within its supervisor. It is also the name of the child's actor.
	ID   string
	Mode RestartMode
	// MaxRestarts restarts are allowed within Window. One more death within the window
	// terminates the supervisor.
	MaxRestarts int
	Window      time.Duration
	// ShutdownTimeout is how long the child is given to exit after a shutdown request, and then
	// again after an interrupt.
	ShutdownTimeout time.Duration

	// Factory creates a fresh instance of the child's behavior.
	Factory  func() actor.Actor
	Mailbox  *actor.MailboxConfig
	Register bool

	// Ref adds an actor that is already running, or created but not started. It is restarted by
	// reinstantiation.
	Ref *actor.Ref
}

// Validate implements the check.Validatable interface.
func (s ChildSpec) Validate() []error {
	var errs []error
	errs = append(errs, check.NotEmpty(s.ID, "child id is required"))
	if s.Factory == nil && s.Ref == nil {
		errs = append(errs, errors.Errorf("child %q needs a factory or a reference", s.ID))
	}
	errs = append(errs, check.GreaterThanOrEqualTo(s.MaxRestarts, 0,
		"max restarts of child %q", s.ID))
	if s.MaxRestarts > 0 {
		errs = append(errs, check.GreaterThan(int64(s.Window), 0,
			"restart window of child %q", s.ID))
	}
	return errs
}

func (s ChildSpec) props() actor.Props {
	return actor.Props{
		Name:     s.ID,
		Factory:  s.Factory,
		Mailbox:  s.Mailbox,
		Register: s.Register,
	}
}

func (s ChildSpec) shutdownTimeout() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return s.ShutdownTimeout
}

var (
	// ErrRestartIntensity is the cause of a supervisor that gave up restarting a child.
	ErrRestartIntensity = errors.New("restart intensity exceeded")
	// ErrEscalated is the cause of a supervisor with the Escalate strategy whose child died.
	ErrEscalated = errors.New("child death escalated")
	// ErrChildExists is returned when adding a child with an id that is already in use.
	ErrChildExists = errors.New("child already exists")
	// ErrChildNotFound is returned for an unknown child id.
	ErrChildNotFound = errors.New("child not found")
)
