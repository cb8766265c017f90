// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each record kind.
const (
	ProjectPrefix = "prj-"
	ConfigPrefix  = "cfg-"
	UserPrefix    = "usr-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Version tokens are 128 random bits rendered as lowercase hex.
const (
	versionAlphabet = "0123456789abcdef"
	versionLength   = 32
)

// TokenLength is the number of characters in a user auth token.
const TokenLength = 40

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Project returns a new project ID.
func Project() (string, error) { return GenerateWithPrefix(ProjectPrefix) }

// Config returns a new config ID.
func Config() (string, error) { return GenerateWithPrefix(ConfigPrefix) }

// User returns a new user ID.
func User() (string, error) { return GenerateWithPrefix(UserPrefix) }

// Version returns a fresh opaque config version token.
func Version() (string, error) {
	v, err := nanoid.Generate(versionAlphabet, versionLength)
	if err != nil {
		return "", fmt.Errorf("idgen: version: %w", err)
	}
	return v, nil
}

// AuthToken returns a new user auth token.
func AuthToken() (string, error) {
	tok, err := nanoid.Generate(Alphabet, TokenLength)
	if err != nil {
		return "", fmt.Errorf("idgen: token: %w", err)
	}
	return tok, nil
}
