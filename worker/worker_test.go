package worker

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukemcguire/retriever/netconn"
	"github.com/lukemcguire/retriever/queue"
	"github.com/lukemcguire/retriever/stats"
	"github.com/lukemcguire/retriever/urlutil"
)

// serveOnce accepts a single connection on ln and writes resp verbatim in
// response to the first request line it reads, mirroring the raw-listener
// test style already used in netconn/pool_test.go.
func serveOnce(t *testing.T, ln net.Listener, resp string) {
	t.Helper()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = c.Write([]byte(resp))
	}()
}

func listen(t *testing.T) (net.Listener, urlutil.Canonical) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	u := urlutil.Canonical{Scheme: "http", Host: "127.0.0.1", Port: port, Path: "/index.html"}
	return ln, u
}

func newWorker(t *testing.T) *Worker {
	t.Helper()
	pool := netconn.NewPool(netconn.NewDialer(2*time.Second), nil)
	return New(0, Config{Tries: 1, UserAgent: "retriever-test"}, Deps{Pool: pool})
}

func TestProcessSavesBodyAndExtractsLinks(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	body := `<html><body><a href="page2.html">next</a></body></html>`
	resp := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body
	serveOnce(t, ln, resp)

	dir := t.TempDir()
	localPath := filepath.Join(dir, "index.html")
	j := &queue.Job{URL: u, LocalPath: localPath}

	out := newWorker(t).Process(context.Background(), j)
	if out.Err != nil {
		t.Fatalf("Process: %v", out.Err)
	}
	if out.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
	if out.BytesWritten != int64(len(body)) {
		t.Errorf("BytesWritten = %d, want %d", out.BytesWritten, len(body))
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != body {
		t.Errorf("saved body = %q, want %q", data, body)
	}
	if len(out.Links) != 1 || out.Links[0].Absolute != "http://127.0.0.1:"+strconv.Itoa(u.Port)+"/page2.html" {
		t.Errorf("Links = %+v, want one resolved link to page2.html", out.Links)
	}
}

func TestProcessSkipsSaveWhenNameRejected(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	body := `<html><body>no links here</body></html>`
	resp := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body
	serveOnce(t, ln, resp)

	dir := t.TempDir()
	localPath := filepath.Join(dir, "index.html")
	j := &queue.Job{URL: u, LocalPath: localPath}

	pool := netconn.NewPool(netconn.NewDialer(2*time.Second), nil)
	w := New(0, Config{Tries: 1}, Deps{Pool: pool, AllowsName: func(name string) bool { return false }})

	out := w.Process(context.Background(), j)
	if out.Err != nil {
		t.Fatalf("Process: %v", out.Err)
	}
	if out.LocalPath != "" {
		t.Errorf("LocalPath = %q, want empty (save skipped)", out.LocalPath)
	}
	if _, err := os.Stat(localPath); !os.IsNotExist(err) {
		t.Error("expected no file to be written when the name policy rejects it")
	}
}

func TestProcessFollowsRedirect(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	resp := "HTTP/1.1 302 Found\r\n" +
		"Location: http://127.0.0.1:" + strconv.Itoa(u.Port) + "/moved.html\r\n" +
		"Content-Length: 0\r\n" +
		"Connection: close\r\n\r\n"
	serveOnce(t, ln, resp)

	j := &queue.Job{URL: u}
	out := newWorker(t).Process(context.Background(), j)
	if out.Err != nil {
		t.Fatalf("Process: %v", out.Err)
	}
	want := "http://127.0.0.1:" + strconv.Itoa(u.Port) + "/moved.html"
	if out.RedirectTo != want {
		t.Errorf("RedirectTo = %q, want %q", out.RedirectTo, want)
	}
	if out.RedirectDepth != 1 {
		t.Errorf("RedirectDepth = %d, want 1", out.RedirectDepth)
	}
}

func TestProcessHeadProbeContentLengthDoesNotHang(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	body := "hello world"
	headResp := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	getResp := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		for _, resp := range []string{headResp, getResp} {
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			if _, err := c.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()

	j := &queue.Job{URL: u, HeadFirst: true}
	done := make(chan Outcome, 1)
	go func() { done <- newWorker(t).Process(context.Background(), j) }()

	select {
	case out := <-done:
		if out.Err != nil {
			t.Fatalf("Process: %v", out.Err)
		}
		if out.StatusCode != 200 {
			t.Errorf("StatusCode = %d, want 200", out.StatusCode)
		}
		if out.BytesWritten != int64(len(body)) {
			t.Errorf("BytesWritten = %d, want %d (the HEAD response's Content-Length must not be read as body bytes)", out.BytesWritten, len(body))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not return: a HEAD response carrying Content-Length blocked waiting for body bytes the server never sent")
	}
}

func TestProcessStopsWhenThrottled(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	pool := netconn.NewPool(netconn.NewDialer(2*time.Second), nil)
	w := New(0, Config{Tries: 1}, Deps{Pool: pool, Throttled: func() bool { return true }})

	j := &queue.Job{URL: u}
	out := w.Process(context.Background(), j)
	if out.Err == nil {
		t.Fatal("expected an error when the memory watcher reports critical pressure")
	}
	if out.Category != stats.CategoryMemoryThrottled {
		t.Errorf("Category = %q, want %q", out.Category, stats.CategoryMemoryThrottled)
	}
	if !out.Done {
		t.Error("Done = false, want true: a throttled job must not retry")
	}
}

func TestProcessRetriesOnServerError(t *testing.T) {
	ln, u := listen(t)
	defer ln.Close()

	var attempts atomic.Int64
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			n := attempts.Add(1)
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			if n < 2 {
				_, _ = c.Write([]byte("HTTP/1.1 503 Service Unavailable\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
			} else {
				_, _ = c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok"))
			}
			c.Close()
		}
	}()

	pool := netconn.NewPool(netconn.NewDialer(2*time.Second), nil)
	w := New(0, Config{Tries: 3, WaitRetry: 10 * time.Millisecond}, Deps{Pool: pool})

	j := &queue.Job{URL: u}
	out := w.Process(context.Background(), j)
	if out.Err != nil {
		t.Fatalf("Process: %v", out.Err)
	}
	if out.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200 after retry", out.StatusCode)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2 (one 503 then one 200)", got)
	}
}
