package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/August26/proxymatrix/internal/model"
)

// Formats accepted by Export and WriteFile.
const (
	FormatPlain  = "plain"
	FormatAccess = "access"
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatReport = "report"
)

// Report is everything a finished (or aborted) scan produced.
type Report struct {
	Results []model.ProxyCheckResult `json:"results"`
	Targets []string                 `json:"targets"`
	Matrix  []model.TargetResult     `json:"matrix"`
	Summary model.ScanStats          `json:"summary"`
}

// SortByLatency returns a copy ordered fastest first. Dead proxies carry the
// sentinel latency and end up last; ties are broken on ip:port.
func SortByLatency(results []model.ProxyCheckResult) []model.ProxyCheckResult {
	out := append([]model.ProxyCheckResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LatencyMs != out[j].LatencyMs {
			return out[i].LatencyMs < out[j].LatencyMs
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// FilterByISP keeps results whose ISP contains substr, case-insensitively.
// An empty substr keeps everything.
func FilterByISP(results []model.ProxyCheckResult, substr string) []model.ProxyCheckResult {
	substr = strings.ToLower(strings.TrimSpace(substr))
	if substr == "" {
		return results
	}
	var out []model.ProxyCheckResult
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.ISP), substr) {
			out = append(out, r)
		}
	}
	return out
}

func workingOnly(results []model.ProxyCheckResult) []model.ProxyCheckResult {
	var out []model.ProxyCheckResult
	for _, r := range results {
		if r.Working() {
			out = append(out, r)
		}
	}
	return out
}

// PrintResultsTable prints working proxies, fastest first.
func PrintResultsTable(w io.Writer, results []model.ProxyCheckResult) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "PROXY\tPROTO\tLAT(ms)\tSPEED\tCOUNTRY\tISP\tANONYMITY")

	for _, r := range SortByLatency(workingOnly(results)) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Key(),
			r.Scheme,
			r.LatencyMs,
			r.Bucket(),
			dashIfEmpty(r.CountryCode),
			dashIfEmpty(r.ISP),
			dashIfEmpty(string(r.Anonymity)),
		)
	}

	tw.Flush()
}

// PrintDeadList prints the proxies that failed Phase 1, one per line.
func PrintDeadList(w io.Writer, results []model.ProxyCheckResult) {
	var dead []string
	for _, r := range results {
		if !r.Working() {
			dead = append(dead, r.URL())
		}
	}
	if len(dead) == 0 {
		return
	}
	sort.Strings(dead)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Dead (%d):\n", len(dead))
	for _, d := range dead {
		fmt.Fprintf(w, "  %s\n", d)
	}
}

// PrintMatrix prints the proxy x target grid. Proxies without a single
// granted cell are listed after the others.
func PrintMatrix(w io.Writer, matrix []model.TargetResult, targets []string) {
	if len(matrix) == 0 || len(targets) == 0 {
		return
	}

	rows := append([]model.TargetResult(nil), matrix...)
	sort.SliceStable(rows, func(i, j int) bool {
		gi, gj := rows[i].AnyGranted(), rows[j].AnyGranted()
		if gi != gj {
			return gi
		}
		return rows[i].ProxyKey < rows[j].ProxyKey
	})

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Target matrix:")
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	fmt.Fprint(tw, "PROXY")
	for _, u := range targets {
		fmt.Fprintf(tw, "\t%s", u)
	}
	fmt.Fprintln(tw)

	for _, tr := range rows {
		fmt.Fprint(tw, tr.Label())
		for _, u := range targets {
			cell := "-"
			if o, ok := tr.PerTarget[u]; ok {
				cell = o.String()
			}
			fmt.Fprintf(tw, "\t%s", cell)
		}
		fmt.Fprintln(tw)
	}

	tw.Flush()
}

// PrintSummary prints the aggregated scan stats.
func PrintSummary(w io.Writer, stats model.ScanStats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Scanned proxies:          %d\n", stats.TotalProxies)
	fmt.Fprintf(w, "  Unique proxies:           %d\n", stats.UniqueProxies)
	fmt.Fprintf(w, "  Working / dead:           %d / %d\n", stats.WorkingProxies, stats.DeadProxies)
	fmt.Fprintf(w, "  Success rate:             %.1f %%\n", stats.SuccessRatePct)
	fmt.Fprintf(w, "  Avg latency (working):    %.1f ms\n", stats.AvgLatencyMs)
	fmt.Fprintf(w, "  Speed fast/moderate/slow: %d / %d / %d\n",
		stats.Buckets[model.LatencyFast], stats.Buckets[model.LatencyModerate], stats.Buckets[model.LatencySlow])
	fmt.Fprintf(w, "  Elite/anonymous/transp.:  %d / %d / %d\n",
		stats.Anonymity[model.AnonymityElite], stats.Anonymity[model.AnonymityAnonymous], stats.Anonymity[model.AnonymityTransparent])
	if stats.Targets > 0 {
		fmt.Fprintf(w, "  Targets:                  %d\n", stats.Targets)
		fmt.Fprintf(w, "  Proxies with access:      %d (%d cells)\n", stats.ReachableProxies, stats.GrantedCells)
	}
	fmt.Fprintf(w, "  Scan time:                %.2f s\n", float64(stats.TotalProcessingTimeMs)/1000.0)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ContentType maps an export format to a MIME type.
func ContentType(format string) string {
	switch format {
	case FormatJSON, FormatReport:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export writes the report in the given format.
func Export(w io.Writer, format string, rep Report) error {
	switch format {
	case FormatPlain:
		return writePlain(w, rep.Results)
	case FormatAccess:
		return writeAccessList(w, rep.Matrix, rep.Targets)
	case FormatCSV:
		return writeCSV(w, rep.Results)
	case FormatJSON:
		return writeJSON(w, SortByLatency(rep.Results))
	case FormatReport:
		return writeJSON(w, rep)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteFile exports the report to path.
func WriteFile(path string, format string, rep Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Export(f, format, rep); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writePlain writes ip:port of every working proxy, fastest first.
func writePlain(w io.Writer, results []model.ProxyCheckResult) error {
	for _, r := range SortByLatency(workingOnly(results)) {
		if _, err := fmt.Fprintln(w, r.Key()); err != nil {
			return err
		}
	}
	return nil
}

// writeAccessList writes "scheme://ip:port | Access: url, url" for every
// proxy with at least one granted target.
func writeAccessList(w io.Writer, matrix []model.TargetResult, targets []string) error {
	rows := append([]model.TargetResult(nil), matrix...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ProxyKey < rows[j].ProxyKey })

	for _, tr := range rows {
		granted := tr.Granted(targets)
		if len(granted) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s://%s | Access: %s\n", tr.Scheme, tr.ProxyKey, strings.Join(granted, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCSV writes one row per proxy, fastest first.
func writeCSV(w io.Writer, results []model.ProxyCheckResult) error {
	cw := csv.NewWriter(w)

	header := []string{"IP", "Port", "Protocol", "Country", "ISP", "Latency", "Status"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range SortByLatency(results) {
		row := []string{
			r.Host,
			strconv.Itoa(r.Port),
			strings.ToUpper(string(r.Scheme)),
			r.CountryCode,
			r.ISP,
			strconv.FormatInt(r.LatencyMs, 10),
			string(r.Status),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
