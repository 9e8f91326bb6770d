// Package ident generates envelope and inbox item ids. Ids must sort
// lexically in creation order (store.ListSorted relies on filename
// order to establish FIFO-ish processing and sweep tiebreaks), so a
// plain random id is not enough: a millisecond-resolution, fixed-width
// timestamp prefix is combined with a short random suffix for
// uniqueness among ids minted in the same millisecond.
package ident

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const suffixLen = 12

// Generate returns a new sortable id: a 13-digit, zero-padded
// milliseconds-since-epoch prefix, a literal separator, and a
// suffixLen-character random suffix. Lexical ordering of ids minted
// at different milliseconds matches creation order; ids minted within
// the same millisecond are ordered by their random suffix, which is
// arbitrary relative to creation order.
func Generate() string {
	prefix := fmt.Sprintf("%013d", time.Now().UnixMilli())
	suffix, err := gonanoid.Generate(alphabet, suffixLen)
	if err != nil {
		panic(fmt.Sprintf("ident: nanoid generation failed: %v", err))
	}
	return prefix + "-" + suffix
}
