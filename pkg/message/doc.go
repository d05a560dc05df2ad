// Package message holds the concrete message shapes exchanged between
// endpoints and the static list that registers them.
package message
