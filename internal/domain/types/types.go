// Package types contains common types used across the application
package types

// Identity represents one enrolled registry entry as exposed to clients
type Identity struct {
	Name string `json:"name"`
	Dim  int    `json:"dim"`
}
