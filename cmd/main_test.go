package main

import "testing"

func TestResolveThreshold(t *testing.T) {
	cases := []struct {
		name        string
		flagSet     bool
		flagValue   float64
		configValue float64
		fallback    float64
		want        float64
	}{
		{"flag wins over config", true, 0.01, 0.1, 0.05, 0.01},
		{"flag at default still wins over config", true, 0.05, 0.01, 0.05, 0.05},
		{"config wins when flag absent", false, 0.05, 0.01, 0.05, 0.01},
		{"fallback when neither given", false, 0.05, 0, 0.05, 0.05},
	}
	for _, c := range cases {
		got := resolveThreshold(c.flagSet, c.flagValue, c.configValue, c.fallback)
		if got != c.want {
			t.Fatalf("%s: resolveThreshold = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSplitListCLI(t *testing.T) {
	got := splitList(" Control , Treated ,, ")
	if len(got) != 2 || got[0] != "Control" || got[1] != "Treated" {
		t.Fatalf("splitList = %v", got)
	}
}
