/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used to name server instances when none is configured and to stamp frames sent to
clients with unique identifiers.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// InstanceIDLength is the length of the random part of a generated instance name.
	InstanceIDLength = 8

	// InstanceIDPrefix prefixes generated instance names.
	InstanceIDPrefix = "node-"
)

// Base62 returns n cryptographically random Base62 characters.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// InstanceID generates a name for a server instance, e.g. "node-3fZk81Qa".
func InstanceID() (string, error) {
	raw, err := Base62(InstanceIDLength)
	if err != nil {
		return "", err
	}
	return InstanceIDPrefix + raw, nil
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a frame.
func MessageID() string {
	return uuid.New().String()
}
