package actor

// Monitor receives hooks about actor activity. Monitor methods are called synchronously from the
// goroutines of the actors they report on and must not block. Panics in a monitor are recovered
// and logged.
type Monitor interface {
	ActorStarted(h Handle)
	ActorRestarted(h Handle)
	ActorDied(h Handle, cause error)
	MessageReceived(h Handle)
	MessageSkipped(h Handle)
}

// NopMonitor ignores every hook.
type NopMonitor struct{}

// ActorStarted implements Monitor.
func (NopMonitor) ActorStarted(Handle) {}

// ActorRestarted implements Monitor.
func (NopMonitor) ActorRestarted(Handle) {}

// ActorDied implements Monitor.
func (NopMonitor) ActorDied(Handle, error) {}

// MessageReceived implements Monitor.
func (NopMonitor) MessageReceived(Handle) {}

// MessageSkipped implements Monitor.
func (NopMonitor) MessageSkipped(Handle) {}

func (s *System) report(f func(m Monitor)) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("actor monitor panicked: %v", rec)
		}
	}()
	f(s.monitor)
}

// ReportRestart reports that the actor was started to replace a dead instance.
func (s *System) ReportRestart(h Handle) {
	s.report(func(m Monitor) { m.ActorRestarted(h) })
}
