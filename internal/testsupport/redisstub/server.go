// Package redisstub implements a minimal in-process Redis server speaking
// just enough RESP for the session store and rate limiter tests. It supports
// string keys with expiry and the commands PING, AUTH, SELECT, SET, GET,
// DEL, INCR, EXPIRE and TTL. Unknown commands receive an error reply but
// keep the connection open so client handshakes (HELLO, CLIENT) degrade
// gracefully.
package redisstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string
	mu       sync.Mutex
	kv       map[string]*entry
	closed   chan struct{}
}

type entry struct {
	value  string
	expiry time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && now.After(e.expiry)
}

func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:     opts,
		listener: ln,
		addr:     ln.Addr().String(),
		kv:       make(map[string]*entry),
		closed:   make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == ""
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			if writeError(writer, "ERR wrong number of arguments") != nil {
				return
			}
			continue
		}
		var replyErr error
		switch strings.ToUpper(args[0]) {
		case "PING":
			replyErr = writeSimpleString(writer, "PONG")
		case "AUTH":
			password := args[len(args)-1]
			if s.opts.Password == "" || password == s.opts.Password {
				authenticated = true
				replyErr = writeSimpleString(writer, "OK")
			} else {
				replyErr = writeError(writer, "WRONGPASS invalid username-password pair")
			}
		case "SELECT":
			replyErr = writeSimpleString(writer, "OK")
		default:
			if !authenticated {
				replyErr = writeError(writer, "NOAUTH Authentication required.")
				break
			}
			replyErr = s.dispatch(writer, args)
		}
		if replyErr != nil {
			return
		}
	}
}

func (s *Server) dispatch(writer *bufio.Writer, args []string) error {
	switch strings.ToUpper(args[0]) {
	case "SET":
		if len(args) < 3 {
			return writeError(writer, "ERR wrong number of arguments for 'set'")
		}
		var ttl time.Duration
		for i := 3; i < len(args); i++ {
			switch strings.ToUpper(args[i]) {
			case "PX":
				if i+1 >= len(args) {
					return writeError(writer, "ERR syntax error")
				}
				ms, err := strconv.ParseInt(args[i+1], 10, 64)
				if err != nil {
					return writeError(writer, "ERR invalid expire time")
				}
				ttl = time.Duration(ms) * time.Millisecond
				i++
			case "EX":
				if i+1 >= len(args) {
					return writeError(writer, "ERR syntax error")
				}
				seconds, err := strconv.ParseInt(args[i+1], 10, 64)
				if err != nil {
					return writeError(writer, "ERR invalid expire time")
				}
				ttl = time.Duration(seconds) * time.Second
				i++
			}
		}
		s.set(args[1], args[2], ttl)
		return writeSimpleString(writer, "OK")
	case "GET":
		if len(args) != 2 {
			return writeError(writer, "ERR wrong number of arguments for 'get'")
		}
		value, ok := s.get(args[1])
		if !ok {
			return writeBulkNil(writer)
		}
		return writeBulkString(writer, value)
	case "DEL":
		if len(args) < 2 {
			return writeError(writer, "ERR wrong number of arguments for 'del'")
		}
		return writeInteger(writer, s.del(args[1:]))
	case "INCR":
		if len(args) != 2 {
			return writeError(writer, "ERR wrong number of arguments for 'incr'")
		}
		value, err := s.incr(args[1])
		if err != nil {
			return writeError(writer, "ERR value is not an integer or out of range")
		}
		return writeInteger(writer, value)
	case "EXPIRE":
		if len(args) != 3 {
			return writeError(writer, "ERR wrong number of arguments for 'expire'")
		}
		seconds, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return writeError(writer, "ERR invalid expire time")
		}
		return writeInteger(writer, s.expire(args[1], time.Duration(seconds)*time.Second))
	case "TTL":
		if len(args) != 2 {
			return writeError(writer, "ERR wrong number of arguments for 'ttl'")
		}
		return writeInteger(writer, s.ttl(args[1]))
	default:
		return writeError(writer, fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
}

func (s *Server) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{value: value}
	if ttl > 0 {
		e.expiry = time.Now().Add(ttl)
	}
	s.kv[key] = e
}

func (s *Server) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok {
		return "", false
	}
	if e.expired(time.Now()) {
		delete(s.kv, key)
		return "", false
	}
	return e.value, true
}

func (s *Server) del(keys []string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := s.kv[key]; ok {
			delete(s.kv, key)
			removed++
		}
	}
	return removed
}

func (s *Server) incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok || e.expired(time.Now()) {
		e = &entry{value: "0"}
		s.kv[key] = e
	}
	value, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	value++
	e.value = strconv.FormatInt(value, 10)
	return value, nil
}

func (s *Server) expire(key string, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok || e.expired(time.Now()) {
		return 0
	}
	e.expiry = time.Now().Add(ttl)
	return 1
}

func (s *Server) ttl(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok {
		return -2
	}
	if e.expiry.IsZero() {
		return -1
	}
	remaining := time.Until(e.expiry)
	if remaining <= 0 {
		delete(s.kv, key)
		return -2
	}
	return int64(remaining / time.Second)
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return strconv.Atoi(line)
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "+%s\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkNil(w *bufio.Writer) error {
	if _, err := w.WriteString("$-1\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func writeInteger(w *bufio.Writer, value int64) error {
	if _, err := fmt.Fprintf(w, ":%d\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(w *bufio.Writer, msg string) error {
	if _, err := fmt.Fprintf(w, "-%s\r\n", msg); err != nil {
		return err
	}
	return w.Flush()
}
