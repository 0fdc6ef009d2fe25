package pointer

import "time"

// Clock returns the current instant.
type Clock func() time.Time

// ApplyTimestamps sets every pointed-to field of doc to one shared UTC
// instant and returns it. It is a no-op when pointers is empty.
func ApplyTimestamps(doc map[string]any, pointers []Pointer, now Clock) (time.Time, error) {
	if len(pointers) == 0 {
		return time.Time{}, nil
	}
	if now == nil {
		now = time.Now
	}
	instant := now().UTC()
	for _, p := range pointers {
		if err := p.Set(doc, instant); err != nil {
			return time.Time{}, err
		}
	}
	return instant, nil
}
