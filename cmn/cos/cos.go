// Package cos ("common os"/"common stuff") holds small string and byte
// helpers shared across packages, matching the teacher's cmn/cos grab
// bag.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "strings"

// JoinWords joins non-empty path segments with '/', the way the
// teacher's cos.JoinWords builds URL paths for transport endpoints.
func JoinWords(words ...string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// BytesEq is a tiny named wrapper so call sites read as intent ("are
// these two key components equal") rather than a bare byte compare.
func BytesEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
