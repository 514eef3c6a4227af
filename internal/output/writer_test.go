package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/August26/proxymatrix/internal/model"
)

func result(host string, port int, scheme model.Scheme, latency int64, isp string) model.ProxyCheckResult {
	r := model.NewDeadResult(model.Candidate{Host: host, Port: port, Scheme: scheme})
	if latency != model.LatencyUnmeasured {
		r.Status = model.StatusWorking
		r.LatencyMs = latency
		r.CountryCode = "DE"
		r.ISP = isp
		r.Anonymity = model.AnonymityElite
	}
	return r
}

func sampleReport() Report {
	targets := []string{"http://intranet/", "http://admin.local/"}
	return Report{
		Results: []model.ProxyCheckResult{
			result("10.0.0.3", 3128, model.SchemeHTTP, 900, "Hetzner Online"),
			result("10.0.0.1", 1080, model.SchemeSOCKS5, 120, "Link3 Technologies"),
			result("10.0.0.2", 8080, model.SchemeHTTP, model.LatencyUnmeasured, ""),
		},
		Targets: targets,
		Matrix: []model.TargetResult{
			{ProxyKey: "10.0.0.2:8080", Scheme: model.SchemeHTTP, PerTarget: map[string]model.Outcome{
				"http://intranet/":    model.OutcomeFromStatus(200),
				"http://admin.local/": model.OutcomeFromStatus(200),
			}},
			{ProxyKey: "10.0.0.1:1080", Scheme: model.SchemeSOCKS5, ISP: "Link3 Technologies", PerTarget: map[string]model.Outcome{
				"http://intranet/":    model.OutcomeFromStatus(403),
				"http://admin.local/": {Kind: model.OutcomeTimeout},
			}},
		},
	}
}

func TestSortByLatency(t *testing.T) {
	rep := sampleReport()
	sorted := SortByLatency(rep.Results)
	require.Equal(t, "10.0.0.1", sorted[0].Host)
	require.Equal(t, "10.0.0.3", sorted[1].Host)
	require.Equal(t, "10.0.0.2", sorted[2].Host)
	// input untouched
	require.Equal(t, "10.0.0.3", rep.Results[0].Host)
}

func TestFilterByISP(t *testing.T) {
	rep := sampleReport()
	require.Len(t, FilterByISP(rep.Results, "  "), 3)
	got := FilterByISP(rep.Results, "hetzner")
	require.Len(t, got, 1)
	require.Equal(t, "10.0.0.3", got[0].Host)
	require.Empty(t, FilterByISP(rep.Results, "comcast"))
}

func TestExport_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatPlain, sampleReport()))
	require.Equal(t, "10.0.0.1:1080\n10.0.0.3:3128\n", buf.String())
}

func TestExport_AccessList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatAccess, sampleReport()))
	require.Equal(t, "http://10.0.0.2:8080 | Access: http://intranet/, http://admin.local/\n", buf.String())
}

func TestExport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatCSV, sampleReport()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"IP", "Port", "Protocol", "Country", "ISP", "Latency", "Status"}, rows[0])
	require.Equal(t, []string{"10.0.0.1", "1080", "SOCKS5", "DE", "Link3 Technologies", "120", "Working"}, rows[1])
	require.Equal(t, []string{"10.0.0.2", "8080", "HTTP", "-", "Unknown", "99999", "Dead"}, rows[3])
}

func TestExport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatJSON, sampleReport()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	require.Equal(t, "10.0.0.1", got[0]["ip"])
	require.EqualValues(t, 1080, got[0]["port"])
	require.Equal(t, "socks5", got[0]["protocol"])
	require.Equal(t, "Working", got[0]["status"])
}

func TestExport_Report(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatReport, sampleReport()))

	var got struct {
		Matrix []struct {
			Proxy   string            `json:"proxy"`
			Targets map[string]string `json:"targets"`
		} `json:"matrix"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Matrix, 2)
	require.Equal(t, "ACCESS_GRANTED", got.Matrix[0].Targets["http://intranet/"])
	require.Equal(t, "TIMEOUT", got.Matrix[1].Targets["http://admin.local/"])
}

func TestExport_UnknownFormat(t *testing.T) {
	require.Error(t, Export(&bytes.Buffer{}, "xml", sampleReport()))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working.txt")
	require.NoError(t, WriteFile(path, FormatPlain, sampleReport()))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:1080\n10.0.0.3:3128\n", string(b))

	require.Error(t, WriteFile(filepath.Join(t.TempDir(), "missing", "x.txt"), FormatPlain, sampleReport()))
}

func TestPrintTables(t *testing.T) {
	rep := sampleReport()
	var buf bytes.Buffer
	PrintResultsTable(&buf, rep.Results)
	PrintMatrix(&buf, rep.Matrix, rep.Targets)
	PrintDeadList(&buf, rep.Results)
	PrintSummary(&buf, model.ScanStats{TotalProxies: 3, WorkingProxies: 2, DeadProxies: 1, Targets: 2, ReachableProxies: 1, GrantedCells: 2})
	out := buf.String()

	lines := strings.Split(out, "\n")
	require.True(t, strings.HasPrefix(lines[0], "PROXY"))
	require.True(t, strings.HasPrefix(lines[1], "10.0.0.1:1080"))
	require.Contains(t, lines[1], "fast")
	require.True(t, strings.HasPrefix(lines[2], "10.0.0.3:3128"))
	require.Contains(t, lines[2], "slow")

	require.Contains(t, out, "Target matrix:")
	require.Contains(t, out, "ACCESS_GRANTED")
	require.Contains(t, out, "10.0.0.1:1080 (Link3 Technologies)")
	require.Contains(t, out, "Dead (1):\n  http://10.0.0.2:8080\n")
	require.Contains(t, out, "Proxies with access:      1 (2 cells)")
}
