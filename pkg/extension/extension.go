package extension

// HookFunc observes or rewrites the running Params value at an
// extension point. Returning an error aborts the remainder of the
// chain for that execution (see System.ExecuteExtensionPoint).
type HookFunc func(params Params) (Params, error)

// HookRegistration binds a HookFunc to a named extension point with a
// priority used to order hooks within the same extension.
type HookRegistration struct {
	Point    string
	Hook     HookFunc
	Priority int
}

// Extension is a unit of pluggable behavior that observes or rewrites
// events at well-known points in the publish pipeline.
type Extension interface {
	ID() string
	Name() string
	Description() string

	// Dependencies lists the ids of extensions that must be registered
	// (and whose hooks for a shared point run first) before this one.
	Dependencies() []string

	// Hooks returns this extension's hook registrations.
	Hooks() []HookRegistration

	Version() string
	Capabilities() []string
}

// Base is an embeddable partial Extension implementation covering the
// metadata fields, so concrete extensions only need to implement Hooks.
type Base struct {
	IDValue           string
	NameValue         string
	DescriptionValue  string
	DependenciesValue []string
	VersionValue      string
	CapabilitiesValue []string
}

func (b Base) ID() string             { return b.IDValue }
func (b Base) Name() string           { return b.NameValue }
func (b Base) Description() string    { return b.DescriptionValue }
func (b Base) Dependencies() []string { return b.DependenciesValue }
func (b Base) Version() string        { return b.VersionValue }
func (b Base) Capabilities() []string { return b.CapabilitiesValue }
