// Package ui renders provisioning progress in the terminal.
//
// Two front ends consume the [tasks.ProgressUpdate] channel of a run:
//   - [Printer] : one line per update, suitable for logs and CI
//   - [Model] : an interactive bubbletea view with a spinner per running step
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern. It starts the
// sequencer itself and quits once the run returns, so the caller can read [Model.Result] and exit
// with the run's code. Pressing q cancels the run's context instead of killing the program.
package ui
