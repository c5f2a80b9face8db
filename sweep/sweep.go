// Package sweep loads and summarizes strategy parameter-sweep results:
// one JSON record per line, each describing how one parameter
// combination performed against the buy-and-hold baseline.
package sweep

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Result is one parameter-combination record.
type Result struct {
	OK    bool        `json:"ok"`
	Key   string      `json:"key"`
	Charm CharmParams `json:"charm"`
	DLV   DLVParams   `json:"dlv"`
	APY   APY         `json:"apy"`
}

// CharmParams 做市腿的阈值参数
type CharmParams struct {
	WideThreshold float64 `json:"wideThreshold"`
	BaseThreshold float64 `json:"baseThreshold"`
}

// DLVParams 杠杆腿的偏离阈值
type DLVParams struct {
	DeviationThresholdAbove float64 `json:"deviationThresholdAbove"`
	DeviationThresholdBelow float64 `json:"deviationThresholdBelow"`
}

// APY holds the annualized returns for one run: the strategy vault,
// the hold baseline, and their difference.
type APY struct {
	Vault float64 `json:"vault"`
	Hold  float64 `json:"hold"`
	Diff  float64 `json:"diff"`
}

// Load reads a JSONL results file. Blank lines are skipped; a
// malformed record fails the whole load with its line number.
func Load(path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readResults(f, path)
}

func readResults(r io.Reader, name string) ([]Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var out []Result
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Result
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}
