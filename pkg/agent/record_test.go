package agent

import "testing"

func TestNewRecordTypeFallback(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pet", "pet"},
		{"Humanoid", "humanoid"},
		{"robot", "pet"},
		{"", "pet"},
	}
	for _, tt := range tests {
		r := NewRecord("1", "Fido", tt.in, "pet", "", "")
		if r.Type != tt.want {
			t.Errorf("type %q: expected %q, got %q", tt.in, tt.want, r.Type)
		}
		if r.Mode != ModePlaying {
			t.Errorf("expected fresh record in PLAYING, got %s", r.Mode)
		}
	}
}

func TestLearningTransitions(t *testing.T) {
	r := NewRecord("1", "Fido", "pet", "pet", "", "")
	if _, stopped := r.StopLearning(5); stopped {
		t.Fatal("expected stop outside LEARNING to be a no-op")
	}

	r.StartLearning("fetch-ball")
	if !r.IsLearning() {
		t.Fatal("expected LEARNING mode")
	}
	schema, stopped := r.StopLearning(42)
	if !stopped || schema != "fetch-ball" {
		t.Fatalf("expected fetch-ball stopped, got %q %v", schema, stopped)
	}
	if r.Mode != ModePlaying || r.LearningSchema != "" || r.LastStopTime != 42 {
		t.Fatalf("unexpected record after stop: %+v", r)
	}
}

func TestGrabbedObject(t *testing.T) {
	r := NewRecord("1", "Fido", "pet", "pet", "", "")
	r.SetGrabbedObject("ball_99")
	if !r.HasGrabbedObject() {
		t.Fatal("expected grabbed object")
	}
	c := r.Clone()
	r.SetGrabbedObject("")
	if r.HasGrabbedObject() {
		t.Fatal("expected grabbed object to be dropped")
	}
	if c.GrabbedObject != "ball_99" {
		t.Fatal("expected clone to be independent")
	}
}
