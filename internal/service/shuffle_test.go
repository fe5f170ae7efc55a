package service

import (
	"sort"
	"testing"
)

func TestShuffleIsPermutation(t *testing.T) {
	in := make([]int, 44)
	for i := range in {
		in[i] = i
	}
	moved := false
	for attempt := 0; attempt < 5 && !moved; attempt++ {
		s := append([]int(nil), in...)
		if err := shuffle(s); err != nil {
			t.Fatalf("shuffle: %v", err)
		}
		for i := range s {
			if s[i] != in[i] {
				moved = true
			}
		}
		sort.Ints(s)
		for i := range s {
			if s[i] != in[i] {
				t.Fatalf("shuffle lost or duplicated elements: %v", s)
			}
		}
	}
	if !moved {
		t.Error("shuffle never changed the order of 44 elements")
	}

	var empty []int
	if err := shuffle(empty); err != nil {
		t.Errorf("shuffle(nil): %v", err)
	}
}
