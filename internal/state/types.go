package state

// Entry is the outcome of the latest sync attempt for one record.
type Entry struct {
	Account     string `json:"account"`
	Zone        string `json:"zone"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Source      string `json:"source"`
	Value       string `json:"value"`
	LastAttempt int64  `json:"lastAttempt"`
	LastSuccess int64  `json:"lastSuccess,omitempty"`
	Failures    int    `json:"consecutiveFailures"`
	Error       string `json:"error,omitempty"`
}

func (e Entry) key() string {
	return entryPrefix + e.Account + "/" + e.Zone + "/" + e.ID
}
