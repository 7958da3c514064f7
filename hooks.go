package nscache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// n keys were served from the backend.
	Hit(instance string, n int)
	// n keys were not served (absent, undecodable, backend down or failing).
	Miss(instance string, n int)

	// An operation was skipped because the health monitor reports the
	// backend as down. op ∈ {"get", "get_many", "put", "put_many", "remove", "clear", "stats"}
	Unavailable(instance, op string)

	// The backend failed an operation; the cache degraded to a miss / no-op.
	BackendError(instance, op string, err error)

	// A stored value could not be turned back into the caller's type.
	DecodeError(instance, wireKey string, err error)

	// Backend returned ok=false on Put (backpressure/eviction/admission).
	WriteRejected(instance, wireKey string)

	// Backend declined an operation it does not implement (e.g. remote clear).
	Unsupported(instance, op string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, int)                    {}
func (NopHooks) Miss(string, int)                   {}
func (NopHooks) Unavailable(string, string)         {}
func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) DecodeError(string, string, error)  {}
func (NopHooks) WriteRejected(string, string)       {}
func (NopHooks) Unsupported(string, string)         {}
