package di

// Token is a typed handle for a registered service. Using tokens instead
// of raw strings keeps the type assertion in one place and makes wiring
// mistakes a compile error at the call site.
type Token[T any] struct {
	name string
}

// NewToken creates a token for a service name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the underlying registration name.
func (t Token[T]) Name() string { return t.name }

// RegisterToken registers a lazy singleton factory under the token.
func RegisterToken[T any](c Container, t Token[T], fn func(ServiceRegistry) T) {
	c.RegisterLazy(t.name, func(sr ServiceRegistry) any {
		return fn(sr)
	})
}

// GetToken resolves a token to its typed service.
func GetToken[T any](sr ServiceRegistry, t Token[T]) T {
	return sr.Get(t.name).(T)
}
