// Package state keeps host-side records on disk that outlive the in-memory
// network, such as the per-citizen approval decision log.
package state
