package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/leonardcser/webcache-mcp/internal/logger"
)

// Serve answers protocol requests on l against kv until ctx is cancelled or
// the listener fails. Open connections are closed on cancellation.
func Serve(ctx context.Context, l net.Listener, kv KeyStore) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var wg conc.WaitGroup
	defer wg.Wait()
	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = acceptBackoff(delay)
			logger.Warnf("cache: accept: %v; retrying in %v", err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		wg.Go(func() { handleConn(ctx, conn, kv) })
	}
}

// acceptBackoff doubles the wait after a failed Accept, from 5ms up to 1s.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	return min(2*prev, time.Second)
}

func handleConn(ctx context.Context, conn net.Conn, kv KeyStore) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(dispatch(ctx, kv, req)); err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, kv KeyStore, req Request) Response {
	ttl := time.Duration(req.TTLMs) * time.Millisecond
	switch req.Op {
	case "get":
		v, err := kv.Get(ctx, req.Key)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Value: v}
	case "put":
		return errorResponse(kv.Put(ctx, req.Key, req.Value, ttl))
	case "delete":
		return errorResponse(kv.Delete(ctx, req.Key))
	case "incr":
		n, err := kv.Incr(ctx, req.Key)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Int: n}
	case "expire":
		return errorResponse(kv.Expire(ctx, req.Key, ttl))
	case "append":
		return errorResponse(kv.Append(ctx, req.Key, req.Value))
	case "range":
		vs, err := kv.Range(ctx, req.Key)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Values: vs}
	case "clear":
		return errorResponse(kv.Clear(ctx))
	default:
		return Response{OK: false, Error: "unknown op " + req.Op, Code: codeBadRequest}
	}
}

func errorResponse(err error) Response {
	if err == nil {
		return Response{OK: true}
	}
	resp := Response{OK: false, Error: err.Error()}
	var de *DecodeError
	switch {
	case errors.Is(err, ErrNotFound):
		resp.Code = codeNotFound
	case errors.As(err, &de):
		resp.Code = codeDecode
	}
	return resp
}
