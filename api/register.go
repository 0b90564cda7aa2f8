package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates the HTTP methods a RestMethod can bind to.
type HTTPVerb int

const (
	Unknown HTTPVerb = iota
	GET
	DELETE
	POST
)

// RestMethod is one registered admin endpoint.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod is a helper for Register.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	return Register(RestMethod{Verb: verb, Path: path, Handler: h})
}

// Register adds an admin REST method, failing if the verb+path pair is
// already taken.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler already registered", key)
	}
	restMethods[key] = m
	return nil
}

// RestMethods returns every method registered so far.
func RestMethods() []RestMethod {
	r := make([]RestMethod, 0, len(restMethods))
	for _, m := range restMethods {
		r = append(r, m)
	}
	return r
}
