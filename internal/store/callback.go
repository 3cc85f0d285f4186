package store

import "context"

// Callback is a single hook used for both directions: raw == nil asks for the
// stored document, anything else asks for it to be stored. The hook owns any
// synchronisation its backing storage needs.
type Callback func(ctx context.Context, raw []byte) ([]byte, error)

// CallbackStore delegates storage to a caller supplied hook.
type CallbackStore struct {
	hook Callback
}

// NewCallbackStore wraps hook.
func NewCallbackStore(hook Callback) *CallbackStore {
	return &CallbackStore{hook: hook}
}

func (s *CallbackStore) Kind() Kind { return KindCallback }

func (s *CallbackStore) Read(ctx context.Context) ([]byte, bool) {
	if s.hook == nil {
		return nil, false
	}
	raw, err := s.hook(ctx, nil)
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (s *CallbackStore) Write(ctx context.Context, raw []byte) error {
	if s.hook == nil {
		return nil
	}
	if raw == nil {
		raw = []byte{}
	}
	if _, err := s.hook(ctx, raw); err != nil {
		return invalidCache("callback", err)
	}
	return nil
}
