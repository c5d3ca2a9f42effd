// Package tasks orchestrates the provisioning run with real-time progress reporting.
//
// # Steps
//
// [Provision] builds the four steps of a run from the loaded configuration:
//
//  1. [InstallStep] : install packages from the dependency manifest
//     - The installer's exit status becomes the process exit code
//
//  2. [CollectStaticStep] : copy static assets into the serving directory
//     - Overwrites without prompting, first source wins
//
//  3. [MakeMigrationsStep] : write a migration descriptor for changed models
//     - Writes nothing when the models are unchanged
//
//  4. [MigrateStep] : apply pending descriptors to the target database
//
// # Sequencing
//
// [Sequencer.Run] executes steps in order and stops at the first failure. Later steps are
// reported as skipped and earlier ones are left in place. Every failure is a [shared.StepError]
// carrying the step's error kind and exit code.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and the finished
// [StepResult]. Updates use select with default to prevent blocking.
package tasks
