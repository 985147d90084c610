// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRotate, RunIssue, RunValidate, ...) accepts a typed
// dependency struct and returns a result value without side effects beyond
// those dependencies. The Engine builds the dependency structs once and
// maps failure kinds to its public error taxonomy.
//
// # Rotation
//
// RunRotate walks Received, RateChecked, TokenValidated, PrincipalLoaded,
// Issued, Persisted and Complete. Any step may end in Rejected. Everything
// fallible runs before the store's single atomic Rotate call, so a rejected
// rotation never leaves the presented token consumed without a successor.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
