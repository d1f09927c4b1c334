// Package store defines the subscription and birthday persistence contract
// shared by the scheduler and the command layer. Implementations live in the
// memory and postgres subpackages; this package must not import database
// drivers or concrete clients.
package store
