package api

import "sort"

// missingFields returns the names of required fields whose values are empty,
// in stable order.
func missingFields(fields map[string]string) []string {
	out := []string{}
	for name, v := range fields {
		if v == "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
