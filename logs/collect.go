package logs

import "github.com/blockberries/evmloader/types"

// Collector accumulates the records of consecutive transactions of one
// execution into a types.ExecutionResult.
type Collector struct {
	result types.ExecutionResult
}

// Add appends one transaction's records and reports whether the
// execution has terminated. Adding after termination is a no-op that
// returns true.
func (c *Collector) Add(records []types.LogRecord) bool {
	if c.result.Completed {
		return true
	}
	c.result.Calls++
	for _, rec := range records {
		switch rec.Marker {
		case types.MarkerEvent:
			c.result.Events = append(c.result.Events, *rec.Event)
		case types.MarkerReturn:
			c.result.Return = rec.Return
			c.result.Completed = true
		}
	}
	return c.result.Completed
}

// Completed reports whether the terminal Return record was observed.
func (c *Collector) Completed() bool { return c.result.Completed }

// Result returns a copy of the accumulated result.
func (c *Collector) Result() types.ExecutionResult {
	r := c.result
	r.Events = append([]types.Event(nil), c.result.Events...)
	return r
}
