// Package domain contains entities without logic, just meta-data.
package domain

// UserID identifies an authenticated user. Accounts, usernames and
// profiles live in the CRUD service; the voice core only ever needs
// the id.
type UserID string
