package firmware

import "testing"

func TestEvaluate(t *testing.T) {
	table := map[string]string{
		"RUT9": "RUT9_R_00.07.06.20",
		"RUTX": "RUTX_R_00.07.06.20",
	}

	cases := []struct {
		name          string
		current       string
		wantAvailable bool
		wantLatestNil bool
		wantLatest    string
	}{
		// Prefix found: latest is always the table's value (spec §4.3),
		// regardless of whether an update is actually available.
		{"update available", "RUT9_R_00.07.05.10", true, false, "RUT9_R_00.07.06.20"},
		{"already newest", "RUT9_R_00.07.06.20", false, false, "RUT9_R_00.07.06.20"},
		{"newer than table", "RUT9_R_00.08.00.00", false, false, "RUT9_R_00.07.06.20"},
		// Prefix absent from the table (or unparseable): latest is nil.
		{"unknown prefix", "RUT2_R_00.01.00.00", false, true, ""},
		{"no prefix match", "garbage", false, true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			available, latest := Evaluate(tc.current, table)
			if available != tc.wantAvailable {
				t.Fatalf("available = %v, want %v", available, tc.wantAvailable)
			}
			if tc.wantLatestNil {
				if latest != nil {
					t.Fatalf("latest = %v, want nil", *latest)
				}
				return
			}
			if latest == nil || *latest != tc.wantLatest {
				t.Fatalf("latest = %v, want %v", latest, tc.wantLatest)
			}
		})
	}
}

func TestCompareVersionsStringFallback(t *testing.T) {
	if compareVersions("abc", "abc") != 0 {
		t.Fatal("equal strings should compare equal")
	}
	if compareVersions("zzz", "aaa") <= 0 {
		t.Fatal("differing strings should compare as newer")
	}
}
