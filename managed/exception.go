package managed

import "github.com/wippyai/managed-runtime/engine"

// Exception is the structured description of a managed throw. It is
// data, not a Go error: invocation surfaces it through a result slot
// and through the owning Context's exception callbacks.
type Exception struct {
	Message    string
	StackTrace string
	Source     string
	ClassName  string
	Namespace  string
	String     string
}

func exceptionFrom(info *engine.ExceptionInfo) *Exception {
	if info == nil {
		return nil
	}
	return &Exception{
		Message:    info.Message,
		StackTrace: info.StackTrace,
		Source:     info.Source,
		ClassName:  info.Class,
		Namespace:  info.Namespace,
		String:     info.String,
	}
}

// FullClassName returns "Namespace.ClassName".
func (e *Exception) FullClassName() string {
	if e.Namespace == "" {
		return e.ClassName
	}
	return e.Namespace + "." + e.ClassName
}
