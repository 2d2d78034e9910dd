package service

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGenerateInvoiceNo(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	got := GenerateInvoiceNo("SO-2026-0001", now)

	if !strings.HasPrefix(got, "INV-SO-2026-0001-") {
		t.Fatalf("unexpected prefix: %s", got)
	}
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if !strings.HasSuffix(got, millis[len(millis)-6:]) {
		t.Fatalf("expected suffix from epoch millis, got %s", got)
	}
}

func TestGenerateTrackingNumber(t *testing.T) {
	now := time.Now()
	pattern := regexp.MustCompile(`^SK\d{13}[0-9A-Z]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		got := GenerateTrackingNumber(now)
		if !pattern.MatchString(got) {
			t.Fatalf("unexpected tracking number format: %s", got)
		}
		seen[got] = true
	}
	// 同一毫秒内的随机后缀应当基本不重复
	if len(seen) < 2 {
		t.Fatal("expected random suffixes to differ")
	}
}
