package common

import "testing"

func TestNormalizeToken(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "usdc", want: "USDC"},
		{in: "  Sol ", want: "SOL"},
		{in: "USDT", want: "USDT"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "to-ken", wantErr: true},
		{in: "WAYTOOLONGSYMBOL", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeToken(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeToken(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeToken(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
