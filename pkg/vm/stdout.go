package vm

import "os"

// stdoutWriter is the zero-value default for VM.Stdout: plain os.Stdout,
// used whenever a caller (cmd/loxvm in the common case) hasn't redirected
// output elsewhere, e.g. for test harnesses capturing script output.
type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
