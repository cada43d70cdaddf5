package eventstore

import "context"

// Recorder appends events to a store and keeps an optional projection in
// step with what was written.
type Recorder struct {
	store      Store
	projection *RunHistoryProjection
}

// NewRecorder returns a Recorder. projection may be nil.
func NewRecorder(store Store, projection *RunHistoryProjection) *Recorder {
	return &Recorder{store: store, projection: projection}
}

// Record persists e, then applies it to the projection.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if err := r.store.Append(ctx, e.RunID(), e.Type(), e.Payload(), e.Metadata()); err != nil {
		return err
	}
	if r.projection != nil {
		r.projection.Apply(e)
	}
	return nil
}
