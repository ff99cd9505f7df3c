package perception

import (
	"context"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/knowledge"
)

// PropertySource exposes the properties reported for an entity.
type PropertySource interface {
	Properties(h core.Handle) map[string]string
}

// PredicatesUpdater derives perceived and property predicates for the
// entities touched by a perception update.
type PredicatesUpdater struct {
	store *knowledge.Store
	props PropertySource
	petID string
}

// NewPredicatesUpdater creates an updater writing into store.
func NewPredicatesUpdater(store *knowledge.Store, props PropertySource, petID string) *PredicatesUpdater {
	return &PredicatesUpdater{store: store, props: props, petID: petID}
}

// Update implements core.PredicatesUpdater.
func (u *PredicatesUpdater) Update(_ context.Context, handles []core.Handle, ts uint64) error {
	agent := u.store.AddNode(knowledge.TypeAvatar, u.petID, ts)
	for _, h := range handles {
		if h == agent {
			continue
		}
		u.store.SetPredicate(knowledge.PredPerceived, "true", ts, agent, h)
		for key, value := range u.props.Properties(h) {
			u.store.SetPredicate("prop_"+key, value, ts, h)
		}
	}
	return nil
}
