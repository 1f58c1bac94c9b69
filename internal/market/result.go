package market

// ItemError identifies one failed item inside a batch run.
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CreateResult is the outcome of one market creation run.
type CreateResult struct {
	RunID     string      `json:"runId"`
	Created   int         `json:"created"`
	Failed    int         `json:"failed"`
	MarketIDs []uint64    `json:"marketIds"`
	Errors    []ItemError `json:"errors"`
}
