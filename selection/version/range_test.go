package version

import "testing"

func TestParseRange(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1.0", "[1.0.0, )", false},
		{"[1.0,2.0)", "[1.0.0, 2.0.0)", false},
		{"[1.0, 2.0]", "[1.0.0, 2.0.0]", false},
		{"(1.0,)", "(1.0.0, )", false},
		{"(,1.0]", "(, 1.0.0]", false},
		{"[1.2.3]", "[1.2.3]", false},
		{"", "(, )", false},
		{"1.*", "1.*", false},
		{"*", "*", false},

		{"(1.0)", "", true},
		{"[2.0,1.0]", "", true},
		{"[1.0,1.0)", "", true},
		{"[1.0", "", true},
		{"[,]", "", true},
		{"[1.0,2.0,3.0]", "", true},
		{"1.*.3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ParseRange(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := r.String(); got != tt.want {
				t.Errorf("ParseRange(%q).String() = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRangeSatisfies(t *testing.T) {
	tests := []struct {
		rng  string
		v    string
		want bool
	}{
		{"1.0", "1.0.0", true},
		{"1.0", "0.9.0", false},
		{"1.0", "5.0.0", true},
		{"[1.0,2.0)", "2.0.0", false},
		{"[1.0,2.0]", "2.0.0", true},
		{"(1.0,)", "1.0.0", false},
		{"[1.2.3]", "1.2.3", true},
		{"[1.2.3]", "1.2.4", false},
		{"1.*", "1.9.0", true},
		{"1.*", "2.0.0", false},

		// Prerelease needs a prerelease bound
		{"1.0", "1.5.0-beta", false},
		{"1.0.0-beta", "1.5.0-beta", true},
	}

	for _, tt := range tests {
		t.Run(tt.rng+"_"+tt.v, func(t *testing.T) {
			r := MustParseRange(tt.rng)
			if got := r.Satisfies(MustParse(tt.v)); got != tt.want {
				t.Errorf("%q.Satisfies(%q) = %v, want %v", tt.rng, tt.v, got, tt.want)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	available := []Version{
		MustParse("1.0.0"), MustParse("1.1.0"), MustParse("1.2.0"),
		MustParse("2.0.0"), MustParse("2.1.0-beta"),
	}

	tests := []struct {
		rng    string
		want   string
		wantOK bool
	}{
		{"1.0", "1.0.0", true},
		{"1.0.5", "1.1.0", true},
		{"[1.1,2.0)", "1.1.0", true},
		{"1.*", "1.2.0", true},
		{"*", "2.0.0", true},
		{"3.0", "", false},
		{"[1.5]", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			got, ok := MustParseRange(tt.rng).BestMatch(available)
			if ok != tt.wantOK {
				t.Fatalf("BestMatch(%q) ok = %v, want %v", tt.rng, ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Errorf("BestMatch(%q) = %s, want %s", tt.rng, got, tt.want)
			}
		})
	}
}
