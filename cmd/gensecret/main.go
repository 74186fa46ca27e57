package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// gensecret prints a random secret suitable for JWT_SECRET.
func main() {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}

	fmt.Println(base64.StdEncoding.EncodeToString(buf))
}
