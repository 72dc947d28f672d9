package metrics

import (
	"bufio"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

type meta struct {
	typ, help string
	label     string // set for expvar.Map metrics
}

var known = map[string]meta{
	"flowgraph_propagations_total":        {typ: "counter", help: "Notifying port value changes"},
	"flowgraph_evaluations_total":         {typ: "counter", help: "Function node evaluations", label: "node"},
	"flowgraph_evaluation_failures_total": {typ: "counter", help: "Function node evaluations that failed", label: "node"},
	"flowgraph_callbacks_skipped_total":   {typ: "counter", help: "Persisted callbacks that did not resolve on load", label: "tag"},
	"flowgraph_saves_total":               {typ: "counter", help: "Graph states written", label: "target"},
	"flowgraph_save_size_bytes":           {typ: "gauge", help: "Size of the last written state", label: "target"},
	"flowgraph_graph_nodes":               {typ: "gauge", help: "Nodes in the session graph"},
}

// WritePrometheus renders the flowgraph_* expvar metrics in Prometheus text
// exposition format, sorted by name and label.
func WritePrometheus(out io.Writer) error {
	w := bufio.NewWriter(out)

	names := make([]string, 0, len(known))
	expvar.Do(func(kv expvar.KeyValue) {
		if _, ok := known[kv.Key]; ok {
			names = append(names, kv.Key)
		}
	})
	sort.Strings(names)

	for _, name := range names {
		m := known[name]
		fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)

		v := expvar.Get(name)
		if m.label == "" {
			fmt.Fprintf(w, "%s %s\n", name, v.String())
			continue
		}
		mp, ok := v.(*expvar.Map)
		if !ok {
			continue
		}
		sub := make([]expvar.KeyValue, 0, 8)
		mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
		sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
		for _, kv := range sub {
			fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
		}
	}
	return w.Flush()
}

// Handler serves WritePrometheus output.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = WritePrometheus(w)
	})
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// escapeLabel escapes backslash, double quote and newline.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
