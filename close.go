package lodstream

import "errors"

// Close stops the watcher and the loader workers and releases the slot
// pool. Slices returned by Slot are invalid afterwards.
func (s *Session) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if s.watcher != nil {
		s.cancel()
		errs = append(errs, s.watcher.Close())
		s.wg.Wait()
	}

	errs = append(errs, s.pool.Close(), s.arena.Close())

	if s.closer != nil {
		errs = append(errs, s.closer.Close())
	}

	s.logger.Info("session closed", "frames", s.frame.Load())

	return translateError(errors.Join(errs...))
}
