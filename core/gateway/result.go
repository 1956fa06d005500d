package gateway

// SubrequestResult is the JSON object produced by a backend client (spec
// §4.3): at minimum client_id and type, plus kind-specific fields.
type SubrequestResult map[string]interface{}

func newResult(clientID, kind string) SubrequestResult {
	return SubrequestResult{"client_id": clientID, "type": kind}
}

// indexedResult pairs an executed (non-skipped) subrequest's result with its
// definition-order index, so a wave's concurrent completions can be sorted
// back into order once it finishes (spec §4.6 step 3.4, §9).
type indexedResult struct {
	index  int
	result SubrequestResult
}
