package comm_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/nasa-jpl/golab-switch/comm"
)

func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }() // use goroutines to handle multiple connections
		}
	}()
	return ln.Addr().String()
}

func echoPool(t *testing.T, size int, timeout time.Duration) *comm.Pool {
	addr := tcpEchoServer(t)
	return comm.NewPool(size, timeout, comm.BackingOffTCPConnMaker(addr, time.Second))
}

func TestPoolFillsToCapacity(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		_, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	if pool.Active() != 3 {
		t.Errorf("expected 3 active connections, got %d", pool.Active())
	}
}

func TestPoolReleasesReuse(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	first, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(first)
	second, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected the returned connection to be reused")
	}
	pool.Put(second)
	if pool.Size() != 1 {
		t.Errorf("expected pool size 1 after reuse, got %d", pool.Size())
	}
}

func TestPoolReleasesExpire(t *testing.T) {
	pool := echoPool(t, 2, 10*time.Millisecond)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(conn)
	time.Sleep(200 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("expected idle connections to be freed, pool size is %d", pool.Size())
	}
}

func TestPoolMaintainsSize(t *testing.T) {
	pool := echoPool(t, 2, time.Second)
	held := []io.ReadWriter{}
	for i := 0; i < 2; i++ {
		rw, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		held = append(held, rw)
	}
	newConn := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		newConn <- rw
	}()
	select {
	case <-newConn:
		t.Fatal("failed to prevent pool overflow")
	case <-time.After(100 * time.Millisecond):
	}
	pool.Put(held[0])
	select {
	case rw := <-newConn:
		if rw != held[0] {
			t.Error("expected the waiting Get to receive the returned connection")
		}
	case <-time.After(time.Second):
		t.Fatal("waiting Get was not released by Put")
	}
}

func TestPoolDestroyOnError(t *testing.T) {
	pool := echoPool(t, 1, time.Second)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.ReturnWithError(conn, io.ErrUnexpectedEOF)
	if pool.Size() != 0 {
		t.Errorf("expected errored connection to be destroyed, pool size is %d", pool.Size())
	}
}

func TestRefusedConnectionFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	start := time.Now()
	_, err = comm.BackingOffTCPConnMaker(addr, time.Second)()
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	if time.Since(start) > time.Second {
		t.Errorf("refused connection was retried for %v", time.Since(start))
	}
}

func TestTerminatorRoundTrip(t *testing.T) {
	pool := echoPool(t, 1, time.Second)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Put(conn)
	var wrap io.ReadWriter = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	n, err := wrap.Write([]byte("print(gpib.address)"))
	if err != nil {
		t.Fatal(err)
	}
	if n != len("print(gpib.address)") {
		t.Errorf("expected write count to exclude the terminator, got %d", n)
	}
	buf := make([]byte, 64)
	n, err = wrap.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "print(gpib.address)\n" {
		t.Errorf("expected echo with terminator, got %q", got)
	}
}

func TestTerminatorStopsAtTerminator(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		server.Write([]byte("1.0\n2.0\n"))
		server.Close()
	}()
	wrap := comm.NewTerminator(client, '\n', '\n')
	buf := make([]byte, 64)
	for _, want := range []string{"1.0\n", "2.0\n"} {
		n, err := wrap.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("expected %q got %q", want, got)
		}
	}
}

func TestTerminatorNotFound(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		server.Write([]byte("no newline"))
		server.Close()
	}()
	wrap := comm.NewTerminator(client, '\n', '\n')
	buf := make([]byte, 64)
	n, err := wrap.Read(buf)
	if err != comm.ErrTerminatorNotFound {
		t.Errorf("expected ErrTerminatorNotFound, got %v", err)
	}
	if string(buf[:n]) != "no newline" {
		t.Errorf("expected partial data to be returned, got %q", buf[:n])
	}
}

func TestSerialConnMakerWithoutConfig(t *testing.T) {
	_, err := comm.SerialConnMaker(nil)()
	if err != comm.ErrNoSerialConf {
		t.Errorf("expected ErrNoSerialConf, got %v", err)
	}
}
