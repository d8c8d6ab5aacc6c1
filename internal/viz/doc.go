// Package viz renders optimised trajectories in the terminal and to files.
//
//   - [Browser]: bubbletea result browser over a decoded solution
//   - [Canvas]: Braille pixel canvas used for stick-figure poses
//   - [TerminalPlot]: asciigraph line plots of one coordinate
//   - [SavePNG]: gonum/plot figures of whole series
//
// # Key Bindings
//
//	j/k   - Next/previous phase
//	h/l   - Step through nodes
//	n/p   - Next/previous coordinate
//	s     - Cycle series (q, qdot, tau, lambda, contact)
//	t     - Cycle color themes
//	q     - Quit
package viz
