package actor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/assert"
)

func TestNormalizeName(t *testing.T) {
	system := NewSystem(t.Name())
	unnamed := newRef(system, Props{}, &counter{})
	for _, tc := range []struct {
		handle Handle
		want   string
	}{
		{NewRemoteHandle("worker-12", nil), "worker-*"},
		{NewRemoteHandle("conn-"+uuid.New().String(), nil), "conn-*"},
		{NewRemoteHandle("calculator", nil), "calculator"},
		{unnamed, "counter"},
	} {
		assert.Equal(t, normalizeName(tc.handle), tc.want)
	}
}

func TestPrometheusMonitor(t *testing.T) {
	registry := prom.NewRegistry()
	monitor, err := NewPrometheusMonitor(registry)
	assert.NilError(t, err)

	_, err = NewPrometheusMonitor(registry)
	assert.ErrorContains(t, err, "registering actor metrics")

	system := NewSystem(t.Name(), WithMonitor(monitor))
	out := make(chan Message, 1)
	ref := spawn(t, system, "worker-1", forwarder(out))
	assert.NilError(t, ref.Send("hi"))
	receiveOne(t, out)
	assert.Equal(t, testutil.ToFloat64(monitor.running), 1.0)
	assert.NilError(t, system.Shutdown(time.Second))

	assert.Equal(t, testutil.ToFloat64(monitor.started.WithLabelValues("worker-*")), 1.0)
	assert.Equal(t, testutil.ToFloat64(monitor.received.WithLabelValues("worker-*")), 1.0)
	assert.Equal(t, testutil.ToFloat64(monitor.deaths.WithLabelValues("worker-*", "normal")), 1.0)
	assert.Equal(t, testutil.ToFloat64(monitor.running), 0.0)
}

func TestDetectDeadlock(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	system := NewSystem(t.Name(), WithDeadlockDetection(true))
	a := newRef(system, Props{Name: "a"}, &counter{})
	b := newRef(system, Props{Name: "b"}, &counter{})

	// Self calls and calls on unmonitored systems are never recorded.
	system.DetectDeadlock(a, a)()
	assert.Equal(t, hook.LastEntry().Level, logrus.WarnLevel)
	assert.Assert(t, NewSystem("plain").DetectDeadlock(a, b) != nil)

	hook.Reset()
	doneAB := system.DetectDeadlock(a, b)
	assert.Equal(t, len(hook.Entries), 0)
	doneBA := system.DetectDeadlock(b, a)
	assert.Assert(t, hook.LastEntry() != nil)
	assert.Equal(t, hook.LastEntry().Level, logrus.WarnLevel)
	assert.Assert(t, len(hook.LastEntry().Message) > 0)
	doneBA()
	doneAB()

	hook.Reset()
	done := system.DetectDeadlock(b, a)
	assert.Equal(t, len(hook.Entries), 0)
	done()

	// A cycle that was already reported is not reported again.
	doneAB = system.DetectDeadlock(a, b)
	doneBA = system.DetectDeadlock(b, a)
	assert.Equal(t, len(hook.Entries), 0)
	doneBA()
	doneAB()
	system.forgetCalls(a)
	system.forgetCalls(b)
}
