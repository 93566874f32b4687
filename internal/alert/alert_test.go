package alert

import (
	"testing"
	"time"
)

func TestComputeIDDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 2, 30, 0, time.UTC)

	a := ComputeID(KindBreakout, "0xabc", ts, 5*time.Minute)
	b := ComputeID(KindBreakout, "0xabc", ts, 5*time.Minute)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("id length = %d, want 16", len(a))
	}
}

func TestComputeIDSameBucket(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	a := ComputeID(KindWhale, "0xabc", base.Add(10*time.Second), 5*time.Minute)
	b := ComputeID(KindWhale, "0xabc", base.Add(4*time.Minute), 5*time.Minute)
	if a != b {
		t.Fatalf("detections inside one bucket should share an id: %s vs %s", a, b)
	}

	c := ComputeID(KindWhale, "0xabc", base.Add(6*time.Minute), 5*time.Minute)
	if a == c {
		t.Fatalf("detections in different buckets should get distinct ids")
	}
}

func TestComputeIDVariesByKindAndContract(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	base := ComputeID(KindBreakout, "0xabc", ts, time.Minute)
	if other := ComputeID(KindWhale, "0xabc", ts, time.Minute); other == base {
		t.Errorf("different kinds should get distinct ids")
	}
	if other := ComputeID(KindBreakout, "0xdef", ts, time.Minute); other == base {
		t.Errorf("different contracts should get distinct ids")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k, err)
		}
		if got != k {
			t.Fatalf("ParseKind(%q) = %q", k, got)
		}
	}
	if _, err := ParseKind("pump"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{"low": TierLow, "normal": TierNormal, "high": TierHigh}
	for name, want := range cases {
		got, err := ParseTier(name)
		if err != nil {
			t.Fatalf("ParseTier(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseTier(%q) = %v, want %v", name, got, want)
		}
		if got.String() != name {
			t.Fatalf("Tier.String() = %q, want %q", got.String(), name)
		}
	}
	if _, err := ParseTier("urgent"); err == nil {
		t.Fatalf("expected an error for an unknown tier")
	}
}
