// Package state keeps per-user dialog state for multi-step conversations,
// such as an admin being asked for a user id or a broadcast text.
package state
