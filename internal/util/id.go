package util

import (
	"github.com/lithammer/shortuuid/v4"
)

// GenID returns a fresh opaque identity token. Worker and session ids both
// use this form.
func GenID() string {
	return shortuuid.New()
}

// GenIDWith returns a fresh token with a readable prefix.
func GenIDWith(prefix string) string {
	return prefix + shortuuid.New()
}
