package main

import "testing"

func TestFormatHourlyMean(t *testing.T) {
	cases := []struct {
		name string
		in   []hourlyPing
		want string
	}{
		{"empty", nil, "-"},
		{"single", []hourlyPing{{Time: "2025-08-18T09:00:00Z", PingMS: 12}}, "12.0 ms"},
		// a partial hour weighs the same as a full one
		{"unweighted", []hourlyPing{
			{Time: "2025-08-18T09:00:00Z", PingMS: 10},
			{Time: "2025-08-18T10:00:00Z", PingMS: 25},
		}, "17.5 ms"},
	}
	for _, c := range cases {
		if got := formatHourlyMean(c.in); got != c.want {
			t.Fatalf("%s: formatHourlyMean=%q want %q", c.name, got, c.want)
		}
	}
}
