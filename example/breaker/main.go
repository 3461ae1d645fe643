package main

import (
	"fmt"
	"time"

	"github.com/trondn/libmemc"
)

// Run this against a server you can stop and restart: while it is down
// the breaker opens after a few failed calls and answers immediately,
// and once the timeout passes a probe re-closes it.
func main() {
	client, err := libmemc.New(libmemc.TextProtocol,
		libmemc.WithDialTimeout(time.Second),
		libmemc.WithCircuitBreaker(libmemc.NewBreakerConfig(1, 30*time.Second, 5*time.Second)),
	)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.AddServer("localhost", 11211); err != nil {
		panic(err)
	}

	item := &libmemc.Item{Key: []byte("breaker:probe"), Data: []byte("ping")}
	for i := 0; i < 60; i++ {
		start := time.Now()
		err := client.Set(item)
		fmt.Printf("set #%02d in %8v: %v\n", i, time.Since(start).Round(time.Microsecond), err)
		time.Sleep(time.Second)
	}
}
