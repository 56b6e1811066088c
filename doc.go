/*
Package ioloop is a single-threaded, callback-driven I/O reactor. It makes direct epoll, kqueue or poll syscalls
rather than using the standard Go net package, and works in a similar manner as libev: a Loop multiplexes many
non-blocking descriptors and dispatches readiness to watchers, which in turn call user handlers.

The building blocks are watchers (IOWatcher, TimerWatcher, AsyncWatcher, StatWatcher), buffered stream
connections (Conn) that are either accepted by a Server or dialed with ConnectTCP/ConnectUNIX, an asynchronous
one-shot DNS resolver used while dialing host names, and a streaming HTTP/1.1 client in the httpclient package.

All callbacks run on the goroutine that drives the Loop, so handlers need no locking. The only operation that may
be called from other goroutines is AsyncWatcher.Signal.

Echo server built upon ioloop is shown below:

	package main

	import (
		"log"

		"github.com/panjf2000/ioloop"
	)

	type echo struct {
		ioloop.BuiltinEventHandler
	}

	func (echo) OnRead(c *ioloop.Conn, data []byte) {
		c.Write(data)
	}

	func main() {
		loop, err := ioloop.NewLoop()
		if err != nil {
			log.Fatal(err)
		}
		srv, err := ioloop.NewTCPServer("127.0.0.1", 9000, func(*ioloop.Conn) ioloop.EventHandler { return echo{} })
		if err != nil {
			log.Fatal(err)
		}
		if err = srv.Attach(loop); err != nil {
			log.Fatal(err)
		}
		log.Fatal(loop.Run(0))
	}
*/
package ioloop
