package main

import (
	"errors"
	"fmt"

	"github.com/trondn/libmemc"
)

func main() {
	client, err := libmemc.New(libmemc.BinaryProtocol)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.AddServer("localhost", 11211); err != nil {
		panic(err)
	}

	item := &libmemc.Item{
		Key:        []byte("example:binary"),
		Data:       []byte("value"),
		Expiration: 120,
	}
	if err := client.Set(item); err != nil {
		panic(err)
	}

	// add on an existing key is rejected, that is the point of add
	if err := client.Add(item); !errors.Is(err, libmemc.ErrNotStored) {
		panic(err)
	}
	fmt.Println("add on the existing key was rejected")

	fetched := &libmemc.Item{Key: []byte("example:binary")}
	if err := client.Get(fetched); err != nil {
		panic(err)
	}
	fmt.Printf("value: %s cas: %d\n", fetched.Data, fetched.CAS)

	fetched.Data = []byte("replaced")
	if err := client.Replace(fetched); err != nil {
		panic(err)
	}
	if err := client.Get(fetched); err != nil {
		panic(err)
	}
	fmt.Printf("value: %s cas: %d\n", fetched.Data, fetched.CAS)
}
