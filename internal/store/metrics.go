package store

// Transfer is one historical transfer record. Records are kept as opaque
// maps so fields produced by the migration tooling pass through the API
// untouched.
type Transfer map[string]any

// Succeeded reports whether the transfer completed successfully.
func (t Transfer) Succeeded() bool {
	success, _ := t["success"].(bool)

	return success
}

// TransferMetrics is the historical transfer document.
type TransferMetrics struct {
	Transfers []Transfer `json:"transfers"`
}

// LoadTransferMetrics reads the historical transfer document. A missing
// document yields empty metrics; a read error is returned for logging with
// the metrics still usable.
func LoadTransferMetrics(docs *DocumentStore) (TransferMetrics, error) {
	var metrics TransferMetrics

	err := docs.LoadInto(HistoricalDocument, &metrics)

	if metrics.Transfers == nil {
		metrics.Transfers = []Transfer{}
	}

	return metrics, err
}

// SuccessRate returns the percentage of transfers that succeeded. With no
// transfers recorded the rate is 0.
func (m TransferMetrics) SuccessRate() float64 {
	if len(m.Transfers) == 0 {
		return 0
	}

	var succeeded int

	for _, transfer := range m.Transfers {
		if transfer.Succeeded() {
			succeeded++
		}
	}

	return float64(succeeded) / float64(len(m.Transfers)) * 100
}
