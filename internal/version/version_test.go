package version

import "testing"

func TestParseFinalRelease(t *testing.T) {
	v, err := Parse("v202401.2.3", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Major != 202401 || v.Functional != 2 || v.Technical != 3 {
		t.Fatalf("unexpected components: %+v", v)
	}
	if v.IsCandidate() {
		t.Fatalf("expected final release")
	}
	if v.String() != "v202401.2.3" {
		t.Fatalf("round trip: %s", v.String())
	}
}

func TestParseCandidate(t *testing.T) {
	v, err := Parse("v202401.2.3-rc5", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.IsCandidate() || *v.Candidate != 5 {
		t.Fatalf("expected rc5, got %+v", v)
	}
	if _, err := Parse("v202401.2.3-rc5", false); err == nil {
		t.Fatalf("expected candidate rejection")
	}
}

func TestParseRejectsMalformedTags(t *testing.T) {
	for _, tag := range []string{"", "main", "v1.2.3", "v202401.2", "202401.2.3", "v202401.2.3-rc"} {
		if _, err := Parse(tag, true); err == nil {
			t.Fatalf("expected error for %q", tag)
		}
		if tag != "v1.2.3" && IsTag(tag) {
			t.Fatalf("IsTag(%q) should be false", tag)
		}
	}
}

func TestCompareOrdersCandidatesBeforeFinals(t *testing.T) {
	parse := func(tag string) Version {
		t.Helper()
		v, err := Parse(tag, true)
		if err != nil {
			t.Fatalf("parse %s: %v", tag, err)
		}
		return v
	}
	ordered := []string{
		"v202311.9.9",
		"v202401.0.0-rc1",
		"v202401.0.0-rc2",
		"v202401.0.0",
		"v202401.0.1",
		"v202401.1.0",
		"v202402.0.0",
	}
	for i := 1; i < len(ordered); i++ {
		prev, next := parse(ordered[i-1]), parse(ordered[i])
		if !prev.Before(next) {
			t.Fatalf("expected %s < %s", ordered[i-1], ordered[i])
		}
		if next.Before(prev) {
			t.Fatalf("ordering not antisymmetric for %s / %s", ordered[i-1], ordered[i])
		}
	}
	if parse("v202401.0.0").Compare(parse("v202401.0.0")) != 0 {
		t.Fatalf("expected equal versions to compare 0")
	}
}
