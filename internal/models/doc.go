// Package models defines the entities stored in the provisioning state database.
//
//   - [Run] : one invocation of the provisioning sequence with its outcome and exit code
//   - [RunStep] : the outcome of a single step within a run
//
// Persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
