package dispatch

// RemainingContacts returns the campaign contacts that have no send record
// yet, preserving the campaign's contact order so repeated runs walk the
// list reproducibly. Send-record existence is the ground truth here;
// campaign counters are never consulted.
func RemainingContacts(contactIDs []string, sent map[string]struct{}) []string {
	remaining := make([]string, 0, len(contactIDs))
	for _, id := range contactIDs {
		if _, ok := sent[id]; ok {
			continue
		}
		remaining = append(remaining, id)
	}
	return remaining
}
