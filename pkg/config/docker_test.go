package config

import "testing"

func TestResolveHostForDocker(t *testing.T) {
	for _, host := range []string{"db.internal", "10.0.0.5", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}

	for _, host := range []string{"localhost", "127.0.0.1", "::1"} {
		got := ResolveHostForDocker(host)
		want := host
		if IsRunningInDocker() {
			want = "host.docker.internal"
		}
		if got != want {
			t.Errorf("ResolveHostForDocker(%q) = %q, want %q", host, got, want)
		}
	}
}
