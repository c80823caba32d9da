// fingerprint.go generates stable hashes for grouping reports.

package report

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

const fingerprintFrames = 3

// Fingerprint hashes the report's error type and its top three frames
// (class, method and file label). Messages, line numbers, IDs and
// timestamps are ignored.
func Fingerprint(r Report) string {
	parts := []string{r.ErrorType}
	if r.Throwable != nil {
		parts = append(parts, frameKeys(r.Throwable.Frames)...)
	}

	input := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func frameKeys(frames []crashkit.StackFrame) []string {
	n := min(len(frames), fingerprintFrames)
	keys := make([]string, 0, n)
	for _, f := range frames[:n] {
		method, _, _ := strings.Cut(f.MethodSignature, " ")
		keys = append(keys, f.ClassName+"."+method+"@"+f.FileLabel)
	}
	return keys
}

// errorType extracts "<type>" from a "<type>: <message>" throwable message.
func errorType(message string) string {
	typ, _, found := strings.Cut(message, ": ")
	if !found || typ == "" || strings.ContainsAny(typ, " \t") {
		return ""
	}
	return typ
}
