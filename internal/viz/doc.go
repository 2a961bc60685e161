// Package viz provides the terminal view of a running simulation.
//
// [Live] is a Bubble Tea model that advances a session a batch of
// iterations per frame and draws the bunch on a Braille [Canvas], either in
// the orbit plane with the nominal orbit and the gap edges, or as a
// rotatable cloud around the bunch centre.
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	N     - Single iteration while paused
//	+/-   - Double or halve iterations per frame
//	V     - Toggle orbit plane and bunch cloud
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
