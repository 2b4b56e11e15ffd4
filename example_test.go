package lindex_test

import (
	"fmt"

	"github.com/hupe1980/lindex"
)

func Example() {
	keys := []uint64{1, 3, 5, 7, 9}
	vals := []string{"one", "three", "five", "seven", "nine"}

	ix, err := lindex.New(keys, vals)
	if err != nil {
		panic(err)
	}
	defer ix.Close()

	const worker = 0

	v, err := ix.Get(5, worker)
	if err != nil {
		panic(err)
	}
	fmt.Println(v)

	if err := ix.Put(4, "four", worker); err != nil {
		panic(err)
	}

	pairs, err := ix.RangeScan(3, 8, worker)
	if err != nil {
		panic(err)
	}
	for _, p := range pairs {
		fmt.Println(p.Key, p.Value)
	}
	// Output:
	// five
	// 3 three
	// 4 four
	// 5 five
	// 7 seven
}
