/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/brianvoe/gofakeit/v7/source"
)

// Display names are adjective-color-animal triples, e.g. "brave-red-fox".
// The registry regenerates on collision; after maxNameAttempts draws a
// short random suffix is added.
const maxNameAttempts = 16

var nameFaker = gofakeit.NewFaker(source.NewCrypto(), true)

// slug keeps only lowercase ASCII letters, so multi-word or capitalized
// dictionary entries still fit between the separators.
func slug(word string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, word)
}

func drawWord(draw func() string) string {
	for {
		if w := slug(draw()); w != "" {
			return w
		}
	}
}

func generateUsername() string {
	return strings.Join([]string{
		drawWord(nameFaker.AdjectiveDescriptive),
		drawWord(nameFaker.SafeColor),
		drawWord(nameFaker.Animal),
	}, "-")
}

func nameSuffix() string {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return hex.EncodeToString(buf)
}
