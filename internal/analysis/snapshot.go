package analysis

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// Measure is a single metric value as reported by the analysis service.
type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// Snapshot is the set of metric values observed for one checkout, keyed by
// metric name in lexicographic order. The order defines the output columns.
type Snapshot struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewSnapshot builds a Snapshot from measures. When a metric appears more
// than once the last value wins.
func NewSnapshot(measures []Measure) Snapshot {
	values := make(map[string]string, len(measures))
	for _, ms := range measures {
		values[ms.Metric] = ms.Value
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	m := orderedmap.NewOrderedMap[string, string]()
	for _, name := range names {
		m.Set(name, values[name])
	}
	return Snapshot{m: m}
}

// Len returns the number of metrics.
func (s Snapshot) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Get returns the value of a metric.
func (s Snapshot) Get(name string) (string, bool) {
	if s.m == nil {
		return "", false
	}
	return s.m.Get(name)
}

// Names returns the metric names in column order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, s.Len())
	if s.m == nil {
		return names
	}
	for el := s.m.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// Values returns the metric values in column order.
func (s Snapshot) Values() []string {
	values := make([]string, 0, s.Len())
	if s.m == nil {
		return values
	}
	for el := s.m.Front(); el != nil; el = el.Next() {
		values = append(values, el.Value)
	}
	return values
}
