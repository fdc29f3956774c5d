package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/daryltucker/kvharness/internal/model"
)

// LogContractVersion identifies the benchmark output format parsed below.
//
// v1:
//
//	Query round mean TTFT: <...> <value>s
//	Query round time: <...> <value>s
//	Query round prompt count: <...> <value>
//	KVBENCH_RESULT {"mean_ttft": <v>, "query_time": <v>, "prompt_count": <v>}   (optional)
//
// When several lines match, the last one wins.
const LogContractVersion = "v1"

// StructuredResultMarker prefixes the machine-readable summary line.
const StructuredResultMarker = "KVBENCH_RESULT "

var fieldPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{model.FieldMeanTTFT, regexp.MustCompile(`Query round mean TTFT:.*?([0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)s\s*$`)},
	{model.FieldQueryTime, regexp.MustCompile(`Query round time:.*?([0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)s\s*$`)},
	{model.FieldPromptCount, regexp.MustCompile(`Query round prompt count:.*?([0-9]+)\s*$`)},
}

// maxLineLength bounds a single output line. Longer fragments are skipped.
const maxLineLength = 4 * 1024 * 1024

// scanLines splits on either \n or \r so progress bars redrawn in place
// become separate fragments. A fragment longer than max is dropped up to
// its next line break instead of aborting the scan.
func scanLines(max int) bufio.SplitFunc {
	discarding := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			if discarding {
				discarding = false
				return i + 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			if discarding {
				return len(data), nil, nil
			}
			return len(data), data, nil
		}
		if len(data) >= max {
			discarding = true
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}

// Metrics are the values scraped from one benchmark log.
type Metrics struct {
	MeanTTFT    string
	QueryTime   string
	PromptCount string
}

func (m *Metrics) set(field, v string) {
	switch field {
	case model.FieldMeanTTFT:
		m.MeanTTFT = v
	case model.FieldQueryTime:
		m.QueryTime = v
	case model.FieldPromptCount:
		m.PromptCount = v
	}
}

// Missing lists the fields that were not found, in CSV order.
func (m Metrics) Missing() []string {
	var out []string
	if m.MeanTTFT == "" {
		out = append(out, model.FieldMeanTTFT)
	}
	if m.QueryTime == "" {
		out = append(out, model.FieldQueryTime)
	}
	if m.PromptCount == "" {
		out = append(out, model.FieldPromptCount)
	}
	return out
}

// Extract scans benchmark output for the v1 contract. A structured result
// line overrides whatever the text patterns found.
func Extract(r io.Reader) (Metrics, error) {
	var text, structured Metrics
	sawStructured := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	scanner.Split(scanLines(maxLineLength))
	for scanner.Scan() {
		line := scanner.Text()

		if i := strings.Index(line, StructuredResultMarker); i >= 0 {
			m, err := parseStructured(line[i+len(StructuredResultMarker):])
			if err == nil {
				structured = m
				sawStructured = true
			}
			continue
		}

		for _, fp := range fieldPatterns {
			if sub := fp.re.FindStringSubmatch(line); sub != nil {
				text.set(fp.name, sub[1])
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Metrics{}, fmt.Errorf("scan benchmark output: %w", err)
	}

	if !sawStructured {
		return text, nil
	}
	// Fill any gaps in the structured line from the text patterns.
	if structured.MeanTTFT == "" {
		structured.MeanTTFT = text.MeanTTFT
	}
	if structured.QueryTime == "" {
		structured.QueryTime = text.QueryTime
	}
	if structured.PromptCount == "" {
		structured.PromptCount = text.PromptCount
	}
	return structured, nil
}

// ExtractFile runs Extract over a log file.
func ExtractFile(path string) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, err
	}
	defer f.Close()
	return Extract(f)
}

func parseStructured(payload string) (Metrics, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Metrics{}, err
	}
	var m Metrics
	for _, field := range []string{model.FieldMeanTTFT, model.FieldQueryTime, model.FieldPromptCount} {
		switch v := raw[field].(type) {
		case json.Number:
			m.set(field, v.String())
		case string:
			m.set(field, strings.TrimSuffix(v, "s"))
		}
	}
	return m, nil
}
