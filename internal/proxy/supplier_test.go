package proxy

import (
	"context"
	"testing"
)

func TestProxySupplier_RoundRobin(t *testing.T) {
	p := &proxySupplier{proxies: []string{"http://a:1", "http://b:2"}}

	got := []string{p.Get(), p.Get(), p.Get()}
	want := []string{"http://a:1", "http://b:2", "http://a:1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 proxies, got %d", p.Len())
	}
}

func TestNewProxySupplier_EmptyMeansDirect(t *testing.T) {
	p, err := NewProxySupplier(context.Background(), nil, "http://unused")
	if err != nil {
		t.Fatalf("new supplier: %v", err)
	}
	if p.Get() != "" || p.Len() != 0 {
		t.Fatalf("expected no proxies")
	}
}
