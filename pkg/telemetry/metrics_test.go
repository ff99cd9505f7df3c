package telemetry

import "testing"

func TestAttributes(t *testing.T) {
	attrs := DispatchAttributes("", "PROXY", "proxy")
	if len(attrs) != 2 {
		t.Fatalf("expected message id to be omitted, got %d attrs", len(attrs))
	}
	attrs = DispatchAttributes("m-1", "PROXY", "proxy")
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attrs, got %d", len(attrs))
	}
	if got := TaskAttributes("EntityExperience", 7)[1].Value.AsInt64(); got != 7 {
		t.Fatalf("expected cycle 7, got %d", got)
	}
	if len(SchemaAttributes("", "SCHEMA")) != 1 {
		t.Fatal("expected empty schema name to be omitted")
	}
}
