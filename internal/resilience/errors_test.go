package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), "graph"), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), "notify"), "notify: publish"), true},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"kafka leader", errors.New("[5] Leader Not Available: the cluster is in the middle of a leadership election"), true},
		{"neo4j unavailable", errors.New("Neo4jError: Neo.TransientError.General.DatabaseUnavailable"), true},
		{"neo4j service", errors.New("ServiceUnavailable: no routing servers available"), true},
		{"auth", errors.New("Neo.ClientError.Security.Unauthorized"), false},
		{"plain", errors.New("bad input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("root")
	te := NewTransientError(base, "graph")
	if !errors.Is(te, base) {
		t.Error("expected errors.Is to find wrapped error")
	}
	if te.Error() != "root" {
		t.Errorf("expected message 'root', got %q", te.Error())
	}
	if te.Sink != "graph" {
		t.Errorf("expected sink graph, got %q", te.Sink)
	}
}
