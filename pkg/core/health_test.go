// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
)

func static(status HealthStatus) HealthChecker {
	return HealthCheckerFunc(func(context.Context) HealthResult {
		return HealthResult{Status: status}
	})
}

func TestHealthRegistryOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"empty", nil, HealthHealthy},
		{"all healthy", []HealthStatus{HealthHealthy, HealthHealthy}, HealthHealthy},
		{"one degraded", []HealthStatus{HealthHealthy, HealthDegraded}, HealthDegraded},
		{"unhealthy wins", []HealthStatus{HealthDegraded, HealthUnhealthy, HealthHealthy}, HealthUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewHealthRegistry()
			for i, s := range tt.statuses {
				r.Register(string(rune('a'+i)), static(s))
			}
			results, overall := r.CheckAll(context.Background())
			if overall != tt.want {
				t.Errorf("expected %s, got %s", tt.want, overall)
			}
			if len(results) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(results))
			}
			for i, res := range results {
				if res.Component != string(rune('a'+i)) {
					t.Errorf("expected results sorted by component, got %q at %d", res.Component, i)
				}
				if res.LastCheck.IsZero() {
					t.Errorf("expected LastCheck to be set")
				}
			}
		})
	}
}
