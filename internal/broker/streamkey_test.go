package broker

import "testing"

func TestDeriveKey(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Big Buck Bunny", "big_buck_bunny"},
		{"cam1", "cam1"},
		{"Cam#1 (Front)", "cam_1_front"},
		{"  spaced  out  ", "spaced_out"},
		{"__already__keyed__", "already_keyed"},
		{"MiXeD-CaSe.2024", "mixed_case_2024"},
		{"!!!", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := DeriveKey(StreamName(c.name)); string(got) != c.want {
			t.Errorf("DeriveKey(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestDeriveKey_deterministic(t *testing.T) {
	a := DeriveKey("Front Door Cam")
	b := DeriveKey("Front Door Cam")
	if a != b {
		t.Errorf("same name derived different keys: %q vs %q", a, b)
	}
}
