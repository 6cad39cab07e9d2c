package telemetry

import "context"

// Multi returns an emitter that forwards each event to every given emitter.
// Each destination is attempted regardless of earlier failures; the first
// error is returned. Nil arguments are skipped; no emitters yields nil so
// callers can pass the result straight to EmitAsync.
func Multi(emitters ...EventEmitter) EventEmitter {
	kept := make([]EventEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return multiEmitter(kept)
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *Event) error {
	var firstErr error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
