// Package domain contains the core entities and value objects for filaswitch.
//
// This package is the innermost layer. It has no dependencies on serial
// links, motion controllers or logging and holds only the vocabulary the
// rest of the module speaks.
//
// # Entities
//
//   - [Port]: a filament feed port, or [NoPort] before anything is engaged
//   - [Presence]: ternary filament presence (absent, present, sensor error)
//   - [ResponseState]: outcome of one outstanding peripheral transaction
//   - [AngleTable]: per-port servo angles for the local variant
//   - [Phase]: the tool-change phase the controller is in
package domain
