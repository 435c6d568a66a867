package domain

type Stats struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
}

// ComputeStats counts orders per status. Every known status is present in the
// result, including zero counts.
func ComputeStats(orders []Order) Stats {
	st := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	for _, o := range orders {
		st.ByStatus[o.Status]++
		st.Total++
	}
	return st
}
