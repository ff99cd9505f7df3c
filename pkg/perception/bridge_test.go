package perception

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jllopis/avatar/pkg/core"
	avatarerrors "github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/knowledge"
)

type recordingTransport struct {
	sent []core.Message
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg core.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Inbound() <-chan core.Message    { return nil }
func (r *recordingTransport) Deregister(context.Context) error { return nil }

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()
	store := knowledge.NewStore()
	b := NewBridge(store, &recordingTransport{}, "OAC_1", "1", "PROXY")

	payload := `{"timestamp": 42, "entities": [{"id": "ball_99", "properties": {"color": "red"}}, {"id": "owner_7", "type": "avatar"}], "holding": "ball_99"}`
	handles, err := b.ProcessMessage(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("expected ball, owner and agent handles, got %v", handles)
	}
	if b.LatestTimestamp() != 42 {
		t.Fatalf("expected latest 42, got %d", b.LatestTimestamp())
	}
	if obj, ok := store.HoldingObject("1"); !ok || obj != "ball_99" {
		t.Fatalf("expected ball_99 held, got %q", obj)
	}

	u := NewPredicatesUpdater(store, b, "1")
	if err := u.Update(ctx, handles, b.LatestTimestamp()); err != nil {
		t.Fatalf("update: %v", err)
	}
	agent, _ := store.Lookup(knowledge.TypeAvatar, "1")
	ball, _ := store.Lookup(knowledge.TypeObject, "ball_99")
	if _, ok := store.Predicate(knowledge.PredPerceived, agent, ball); !ok {
		t.Fatal("expected perceived(agent, ball)")
	}
	if f, ok := store.Predicate("prop_color", ball); !ok || f.Value != "red" {
		t.Fatalf("expected color property, got %+v", f)
	}

	// Older timestamps do not move the clock back.
	if _, err := b.ProcessMessage(ctx, `{"timestamp": 7, "entities": []}`); err != nil {
		t.Fatalf("process: %v", err)
	}
	if b.LatestTimestamp() != 42 {
		t.Fatalf("expected latest to stay 42, got %d", b.LatestTimestamp())
	}
}

func TestProcessMessageMalformed(t *testing.T) {
	b := NewBridge(knowledge.NewStore(), &recordingTransport{}, "OAC_1", "1", "PROXY")
	_, err := b.ProcessMessage(context.Background(), "not json")
	if !avatarerrors.HasCode(err, avatarerrors.CodeProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestAct(t *testing.T) {
	ctx := context.Background()
	tr := &recordingTransport{}
	b := NewBridge(knowledge.NewStore(), tr, "OAC_1", "1", "PROXY", WithActions("grab"))

	handled, err := b.Act(ctx, "grab", []any{"ball_99"})
	if err != nil || !handled {
		t.Fatalf("expected grab handled, got %v %v", handled, err)
	}
	if len(tr.sent) != 1 || tr.sent[0].To != "PROXY" || tr.sent[0].From != "OAC_1" {
		t.Fatalf("unexpected sent messages %+v", tr.sent)
	}
	var plan ActionPlan
	if err := json.Unmarshal([]byte(tr.sent[0].Payload), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.Action != "grab" || plan.Agent != "1" {
		t.Fatalf("unexpected plan %+v", plan)
	}

	if handled, _ := b.Act(ctx, "fly", nil); handled {
		t.Fatal("expected unknown action to be left unhandled")
	}

	tr.err = errors.New("link down")
	_, err = b.Act(ctx, "grab", nil)
	if !avatarerrors.HasCode(err, avatarerrors.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
