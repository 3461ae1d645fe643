package main

import (
	"fmt"
	"time"

	"github.com/trondn/libmemc"
	"github.com/trondn/libmemc/hash"
)

func main() {
	// Route keys with murmur3 instead of the default hash, and bound
	// every network call.
	client, err := libmemc.New(libmemc.TextProtocol,
		libmemc.WithPicker(libmemc.NewHashPicker(hash.NewMurmur3(0))),
		libmemc.WithDialTimeout(5*time.Second),
		libmemc.WithReadTimeout(3*time.Second),
		libmemc.WithWriteTimeout(3*time.Second),
	)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	for _, port := range []int{11211, 11212, 11213} {
		if err := client.AddServer("localhost", port); err != nil {
			panic(err)
		}
	}

	for i := 0; i < 100; i++ {
		item := &libmemc.Item{
			Key:  []byte(fmt.Sprintf("cluster:%d", i)),
			Data: []byte(fmt.Sprintf("value-%d", i)),
		}
		if err := client.Set(item); err != nil {
			fmt.Printf("set %s failed: %v\n", item.Key, err)
		}
	}

	item := &libmemc.Item{Key: []byte("cluster:42")}
	if err := client.Get(item); err != nil {
		panic(err)
	}
	fmt.Printf("cluster:42 = %s\n", item.Data)

	stats := client.Stats()
	fmt.Printf("gets=%d hits=%d misses=%d stores=%d rejected=%d errors=%d\n",
		stats.Gets, stats.GetHits, stats.GetMisses, stats.Stores, stats.NotStored, stats.Errors)
}
