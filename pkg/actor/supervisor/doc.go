// Package supervisor implements supervisors: servers that start a list of child actors, watch
// them and restart them according to a restart strategy when they die.
//
// Each child has a restart mode. Permanent children are always restarted, transient children
// only after an abnormal death, and temporary children never. Every child also has a restart
// intensity: when it would be restarted more than MaxRestarts times within Window, the
// supervisor gives up and dies with ErrRestartIntensity, leaving the decision to its own
// supervisor.
//
// Children are shut down in reverse start order. A child is first asked to shut down, then
// interrupted, and finally abandoned if it still does not exit.
package supervisor
