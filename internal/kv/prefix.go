package kv

type prefixed struct {
	backend Backend
	prefix  string
}

// WithPrefix namespaces every key of b under prefix.
func WithPrefix(b Backend, prefix string) Backend {
	return &prefixed{backend: b, prefix: prefix}
}

func (p *prefixed) Get(key string) (string, bool, error) {
	return p.backend.Get(p.prefix + key)
}

func (p *prefixed) Set(key, value string) error {
	return p.backend.Set(p.prefix+key, value)
}

func (p *prefixed) Delete(key string) error {
	return p.backend.Delete(p.prefix + key)
}
