package cache

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// One request -> one response; a connection may carry many pairs.

type Request struct {
	Op    string `json:"op"` // get | put | delete | incr | expire | append | range | clear
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
	TTLMs int64  `json:"ttl_ms,omitempty"`
}

type Response struct {
	OK     bool     `json:"ok"`
	Value  []byte   `json:"value,omitempty"`
	Values [][]byte `json:"values,omitempty"`
	Int    int64    `json:"int,omitempty"`
	Error  string   `json:"error,omitempty"`
	Code   string   `json:"code,omitempty"`
}

// Error codes let the client rebuild typed errors.
const (
	codeNotFound   = "not_found"
	codeDecode     = "decode"
	codeBadRequest = "bad_request"
)
