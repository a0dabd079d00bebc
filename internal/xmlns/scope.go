package xmlns

import "strconv"

// XMLNamespace is bound to the reserved "xml" prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

type decl struct {
	prefix string
	uri    string
}

// nsScope holds the declarations made on one element, in document order.
type nsScope struct {
	decls []decl
}

func (s *nsScope) lookup(prefix string) (string, bool) {
	for _, d := range s.decls {
		if d.prefix == prefix {
			return d.uri, true
		}
	}
	return "", false
}

// set binds prefix, replacing an earlier binding on the same element.
func (s *nsScope) set(prefix, uri string) {
	for i, d := range s.decls {
		if d.prefix == prefix {
			s.decls[i].uri = uri
			return
		}
	}
	s.decls = append(s.decls, decl{prefix: prefix, uri: uri})
}

func (s *nsScope) remove(prefix string) {
	for i, d := range s.decls {
		if d.prefix == prefix {
			s.decls = append(s.decls[:i], s.decls[i+1:]...)
			return
		}
	}
}

type nsStack struct {
	scopes []nsScope
}

func (s *nsStack) push(scope nsScope) {
	s.scopes = append(s.scopes, scope)
}

func (s *nsStack) pop() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (s *nsStack) depth() int {
	return len(s.scopes)
}

// top returns the innermost scope, or nil when the stack is empty.
func (s *nsStack) top() *nsScope {
	if len(s.scopes) == 0 {
		return nil
	}
	return &s.scopes[len(s.scopes)-1]
}

// lookup resolves prefix from the innermost scope outward. The default
// namespace resolves to "" when nothing declares it.
func (s *nsStack) lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if uri, ok := s.scopes[i].lookup(prefix); ok {
			return uri, true
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// prefixFor returns a non-empty prefix currently bound to uri.
func (s *nsStack) prefixFor(uri string) (string, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		for _, d := range s.scopes[i].decls {
			if d.prefix == "" || d.uri != uri {
				continue
			}
			// A nearer scope may have rebound the prefix.
			if cur, _ := s.lookup(d.prefix); cur == uri {
				return d.prefix, true
			}
		}
	}
	return "", false
}

// freshPrefix returns an "nsN" prefix that is not bound anywhere in scope.
func (s *nsStack) freshPrefix(next *int) string {
	for {
		*next++
		p := "ns" + strconv.Itoa(*next)
		if _, ok := s.lookup(p); !ok {
			return p
		}
	}
}
