package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leonardcser/webcache-mcp/internal/cache"
)

var ErrLogMismatch = errors.New("instrument: call logs out of step")

// LogMismatchError reports inputs and outputs logs of different lengths,
// which means a call is in flight or the instrumentation was bypassed.
type LogMismatchError struct {
	Op      string
	Inputs  int
	Outputs int
}

func (e *LogMismatchError) Error() string {
	return fmt.Sprintf("instrument: %s has %d inputs but %d outputs", e.Op, e.Inputs, e.Outputs)
}

func (e *LogMismatchError) Is(target error) bool { return target == ErrLogMismatch }

// CallRecord is one logged invocation.
type CallRecord struct {
	Inputs string
	Output string
}

// Trace is the replayable history of one operation.
type Trace struct {
	Op    string
	Calls []CallRecord
}

// Replay reads op's logs and pairs them by position. When the logs differ in
// length the trace covers the shorter one and a *LogMismatchError is returned
// alongside it.
func Replay(ctx context.Context, store cache.KeyStore, op string) (*Trace, error) {
	inputs, err := store.Range(ctx, InputsKey(op))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", op, err)
	}
	outputs, err := store.Range(ctx, OutputsKey(op))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", op, err)
	}

	n := min(len(inputs), len(outputs))
	t := &Trace{Op: op, Calls: make([]CallRecord, 0, n)}
	for i := 0; i < n; i++ {
		in, err := cache.DecodeString(InputsKey(op), inputs[i])
		if err != nil {
			return nil, err
		}
		out, err := cache.DecodeString(OutputsKey(op), outputs[i])
		if err != nil {
			return nil, err
		}
		t.Calls = append(t.Calls, CallRecord{Inputs: in, Output: out})
	}
	if len(inputs) != len(outputs) {
		return t, &LogMismatchError{Op: op, Inputs: len(inputs), Outputs: len(outputs)}
	}
	return t, nil
}

// Lines renders the header followed by one line per call.
func (t *Trace) Lines() []string {
	lines := make([]string, 0, len(t.Calls)+1)
	lines = append(lines, fmt.Sprintf("%s was called %d times:", t.Op, len(t.Calls)))
	for _, c := range t.Calls {
		lines = append(lines, fmt.Sprintf("%s%s -> %s", t.Op, c.Inputs, c.Output))
	}
	return lines
}

func (t *Trace) String() string { return strings.Join(t.Lines(), "\n") }

func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, t.String()+"\n")
	return int64(n), err
}
