package schedule

// ExceptionIndex keys a series' exceptions by their nominal instance time.
type ExceptionIndex map[int64]Exception

// IndexExceptions builds an ExceptionIndex. A later exception for the same
// nominal instance replaces an earlier one.
func IndexExceptions(exceptions []Exception) ExceptionIndex {
	idx := make(ExceptionIndex, len(exceptions))
	for _, ex := range exceptions {
		idx[ex.OriginalInstanceAt] = ex
	}
	return idx
}

// Overlay applies exceptions to generated instances, preserving order.
// Canceled instances are dropped. Moved instances take the exception's
// times but keep OriginalInstanceAt. Nothing is added and the result is not
// re-filtered against the window, so a moved instance can land outside it.
func Overlay(instances []Instance, exceptions ExceptionIndex) []Instance {
	out := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		ex, ok := exceptions[inst.OriginalInstanceAt]
		if !ok {
			out = append(out, inst)
			continue
		}
		switch ex.Status {
		case ExceptionCanceled:
			continue
		case ExceptionMoved:
			inst.StartAt = ex.NewStartAt.OrElse(inst.StartAt)
			inst.EndAt = ex.NewEndAt.OrElse(inst.EndAt)
		}
		out = append(out, inst)
	}
	return out
}
