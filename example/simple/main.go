package main

import (
	"errors"
	"fmt"

	"github.com/trondn/libmemc"
)

func main() {
	client, err := libmemc.New(libmemc.TextProtocol)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.AddServer("localhost", 11211); err != nil {
		panic(err)
	}

	// get first
	item := &libmemc.Item{Key: []byte("key")}
	if err := client.Get(item); err != nil {
		if !errors.Is(err, libmemc.ErrCacheMiss) {
			panic(err)
		}
		fmt.Println("'key' not found")
	} else {
		fmt.Printf("key: %s value: %s\n", item.Key, item.Data)
	}

	item.Data = []byte("value")
	item.Flags = 42
	if err := client.Set(item); err != nil {
		panic(err)
	}

	fetched := &libmemc.Item{Key: []byte("key")}
	if err := client.Get(fetched); err != nil {
		panic(err)
	}
	fmt.Printf("key: %s value: %s flags: %d\n", fetched.Key, fetched.Data, fetched.Flags)
}
