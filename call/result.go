package call

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blockberries/evmloader"
)

const (
	logPrefix   = "Program log: "
	successLine = logPrefix + "succeed"
)

// ReturnValue extracts the result a loader call reports in its log
// messages: the line after the "Program log: succeed" sentinel,
// hex-encoded. A missing sentinel, a missing result line or bad hex is
// a *evmloader.MalformedLogError.
func ReturnValue(logs []string) ([]byte, error) {
	for i, line := range logs {
		if line != successLine {
			continue
		}
		if i+1 >= len(logs) {
			return nil, &evmloader.MalformedLogError{Reason: "success sentinel is the last log line"}
		}
		next := logs[i+1]
		if !strings.HasPrefix(next, logPrefix) {
			return nil, &evmloader.MalformedLogError{Reason: fmt.Sprintf("line after success sentinel is not a program log: %q", next)}
		}
		text := strings.TrimPrefix(strings.TrimPrefix(next, logPrefix), "0x")
		value, err := hex.DecodeString(text)
		if err != nil {
			return nil, &evmloader.MalformedLogError{Reason: fmt.Sprintf("result line is not hex: %v", err)}
		}
		return value, nil
	}
	return nil, &evmloader.MalformedLogError{Reason: "success sentinel not found"}
}
