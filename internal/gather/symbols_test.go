package gather

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSymbolFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"symbol header", "name,symbol\nApple,aapl\nMicrosoft,MSFT\nApple again,AAPL\n", []string{"AAPL", "MSFT"}},
		{"no header", "bbca\ntlkm, extra\n\n", []string{"BBCA", "TLKM"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".csv")
		if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadSymbolFile(path)
		if err != nil {
			t.Fatalf("%s: LoadSymbolFile returned error: %v", tt.name, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := LoadSymbolFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLatestSymbolFile(t *testing.T) {
	dir := t.TempDir()
	if got := LatestSymbolFile(dir, "us_stock"); got != filepath.Join(dir, "us_stock.csv") {
		t.Errorf("fallback = %s", got)
	}
	for _, name := range []string{"us_stock_2024-01-02.csv", "us_stock_2024-03-01.csv", "us_etf_2025-01-01.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := LatestSymbolFile(dir, "us_stock"); got != filepath.Join(dir, "us_stock_2024-03-01.csv") {
		t.Errorf("latest = %s", got)
	}
}
